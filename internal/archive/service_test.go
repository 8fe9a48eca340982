package archive

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"

	"github.com/adlibra/adlibra-backend/internal/extract"
	"github.com/adlibra/adlibra-backend/internal/mediastore"
	"github.com/adlibra/adlibra-backend/pkg/db/models"
	"github.com/adlibra/adlibra-backend/pkg/enums"
	"github.com/adlibra/adlibra-backend/pkg/logger"
)

type stubRepo struct {
	existing map[string]*models.AdArchive

	upsertAdCalls    int
	upsertAdErr      error
	upsertAdFailures int

	savedAd    *models.AdArchive
	savedMedia []models.AdMedia
}

func newStubRepo() *stubRepo {
	return &stubRepo{existing: map[string]*models.AdArchive{}}
}

func (s *stubRepo) FindByExternalID(_ context.Context, platform, adArchiveID string) (*models.AdArchive, error) {
	return s.existing[platform+"/"+adArchiveID], nil
}

func (s *stubRepo) UpsertAd(_ context.Context, ad *models.AdArchive) error {
	s.upsertAdCalls++
	if s.upsertAdFailures > 0 {
		s.upsertAdFailures--
		return errors.New("transient db error")
	}
	if s.upsertAdErr != nil {
		return s.upsertAdErr
	}
	s.savedAd = ad
	return nil
}

func (s *stubRepo) UpsertMedia(_ context.Context, items []models.AdMedia) error {
	s.savedMedia = items
	return nil
}

type passthroughResolver struct {
	calls []string
}

func (p *passthroughResolver) Resolve(_ context.Context, _ uuid.UUID, _ int, _ enums.MediaType, originalURL string) (*mediastore.Resolved, error) {
	p.calls = append(p.calls, originalURL)
	return &mediastore.Resolved{MediaURL: originalURL}, nil
}

func newTestService(t *testing.T, repo repository, res resolver) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:     repo,
		Resolver: res,
		Logger:   logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("error"), Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	svc.retryDelay = 0
	return svc
}

func sampleAd() extract.CollatedAd {
	return extract.CollatedAd{
		AdArchiveID: "555",
		PageName:    "Acme",
		Snapshot: extract.Snapshot{
			Body: extract.Body{Text: "hello"},
			Cards: []extract.Card{
				{OriginalImageURL: "https://cdn/img1.jpg"},
			},
			Images: []extract.ImageAsset{{OriginalImageURL: "https://cdn/img2.jpg"}},
			Videos: []extract.VideoAsset{{VideoHDURL: "https://cdn/vid1.mp4"}},
		},
	}
}

func keywordMeta() JobMeta {
	return JobMeta{SearchType: enums.SearchTypeKeyword, SearchQuery: "acme", Platform: "meta"}
}

func TestSaveAdClassifiesNewAndUpdated(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(t, repo, &passthroughResolver{})

	result, err := svc.SaveAd(context.Background(), sampleAd(), keywordMeta())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !result.IsNew {
		t.Fatal("first save must be new")
	}

	repo.existing["meta/555"] = &models.AdArchive{ID: uuid.New(), Platform: "meta", AdArchiveID: "555"}
	result, err = svc.SaveAd(context.Background(), sampleAd(), keywordMeta())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if result.IsNew {
		t.Fatal("second save must be an update")
	}
	if repo.savedAd.ID != repo.existing["meta/555"].ID {
		t.Fatal("update must reuse the existing row id")
	}
}

func TestSaveAdAssignsPositionsImagesThenVideos(t *testing.T) {
	repo := newStubRepo()
	res := &passthroughResolver{}
	svc := newTestService(t, repo, res)

	result, err := svc.SaveAd(context.Background(), sampleAd(), keywordMeta())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if result.MediaCount != 3 {
		t.Fatalf("media count: %d", result.MediaCount)
	}

	wantOrder := []string{"https://cdn/img1.jpg", "https://cdn/img2.jpg", "https://cdn/vid1.mp4"}
	for i, item := range repo.savedMedia {
		if item.Position != i {
			t.Fatalf("item %d has position %d", i, item.Position)
		}
		if item.OriginalURL != wantOrder[i] {
			t.Fatalf("item %d url %s, want %s", i, item.OriginalURL, wantOrder[i])
		}
	}
	if repo.savedMedia[0].MediaType != enums.MediaTypeImage || repo.savedMedia[2].MediaType != enums.MediaTypeVideo {
		t.Fatal("expected images before videos")
	}
}

func TestSaveAdRetriesTransientFailures(t *testing.T) {
	repo := newStubRepo()
	repo.upsertAdFailures = 2
	svc := newTestService(t, repo, &passthroughResolver{})

	result, err := svc.SaveAd(context.Background(), sampleAd(), keywordMeta())
	if err != nil {
		t.Fatalf("save should succeed on third attempt: %v", err)
	}
	if result.Attempts != 3 {
		t.Fatalf("attempts: %d", result.Attempts)
	}
	if repo.upsertAdCalls != 3 {
		t.Fatalf("upsert calls: %d", repo.upsertAdCalls)
	}
}

func TestSaveAdGivesUpAfterThreeAttempts(t *testing.T) {
	repo := newStubRepo()
	repo.upsertAdErr = errors.New("db down")
	svc := newTestService(t, repo, &passthroughResolver{})

	if _, err := svc.SaveAd(context.Background(), sampleAd(), keywordMeta()); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if repo.upsertAdCalls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", repo.upsertAdCalls)
	}
}

func TestBuildArchiveMapsFields(t *testing.T) {
	ad := sampleAd()
	ad.StartDate = 1700000000
	record := buildArchive(ad, keywordMeta())

	if record.Platform != "meta" || record.AdArchiveID != "555" {
		t.Fatalf("identity: %s/%s", record.Platform, record.AdArchiveID)
	}
	if record.CreativeBody != "hello" {
		t.Fatalf("creative body: %q", record.CreativeBody)
	}
	if record.AdvertiserName != "Acme" {
		t.Fatalf("advertiser: %q", record.AdvertiserName)
	}
	if record.StartedRunningDate == nil {
		t.Fatal("expected start date")
	}
	if record.SearchType != enums.SearchTypeKeyword || record.SearchQuery != "acme" {
		t.Fatal("search meta not carried")
	}
}
