package placecache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Romigo24/star-burger/internal/model"
)

type stubRepo struct {
	mu      sync.Mutex
	places  map[string]*model.Place
	inserts int

	updateErr error
}

func newStubRepo() *stubRepo {
	return &stubRepo{places: make(map[string]*model.Place)}
}

func (s *stubRepo) GetOrCreatePlace(ctx context.Context, address string) (*model.Place, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.places[address]; ok {
		cp := *p
		return &cp, nil
	}

	s.inserts++
	s.places[address] = &model.Place{Address: address}
	return &model.Place{Address: address}, nil
}

func (s *stubRepo) UpdatePlaceCoordinates(ctx context.Context, address string, point model.Point) error {
	if s.updateErr != nil {
		return s.updateErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.places[address]
	if !ok {
		return nil
	}
	if p.Lat != nil || p.Lon != nil {
		return nil
	}
	p.Lat = &point.Lat
	p.Lon = &point.Lon
	return nil
}

func (s *stubRepo) GetUnresolvedAddresses(ctx context.Context, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res []string
	for address, p := range s.places {
		if p.Lat == nil {
			res = append(res, address)
		}
	}
	return res, nil
}

type stubGeocoder struct {
	calls atomic.Int64

	point model.Point
	err   error
}

func (s *stubGeocoder) Resolve(ctx context.Context, address string) (model.Point, error) {
	s.calls.Add(1)
	return s.point, s.err
}

func TestLocate_EmptyAddressRejectedWithoutCall(t *testing.T) {
	repo := newStubRepo()
	geo := &stubGeocoder{}
	cache := New(repo, geo, nil)

	_, err := cache.Locate(context.Background(), "   ")
	if !errors.Is(err, ErrEmptyAddress) {
		t.Fatalf("err = %v, want ErrEmptyAddress", err)
	}
	if geo.calls.Load() != 0 {
		t.Fatalf("geocoder calls = %d, want 0", geo.calls.Load())
	}
	if repo.inserts != 0 {
		t.Fatalf("inserts = %d, want 0", repo.inserts)
	}
}

func TestLocate_ResolvesAndPersists(t *testing.T) {
	repo := newStubRepo()
	geo := &stubGeocoder{point: model.Point{Lat: 55.75, Lon: 37.61}}
	cache := New(repo, geo, nil)

	place, err := cache.Locate(context.Background(), "Москва")
	if err != nil {
		t.Fatalf("Locate error: %v", err)
	}
	if !place.Resolved() {
		t.Fatalf("place is not resolved: %+v", place)
	}
	if *place.Lat != 55.75 || *place.Lon != 37.61 {
		t.Fatalf("coordinates = (%v, %v)", *place.Lat, *place.Lon)
	}

	stored := repo.places["Москва"]
	if stored == nil || stored.Lat == nil || *stored.Lat != 55.75 {
		t.Fatalf("coordinates were not persisted: %+v", stored)
	}
}

func TestLocate_ResolvedPlaceSkipsGeocoder(t *testing.T) {
	repo := newStubRepo()
	lat, lon := 55.75, 37.61
	repo.places["Москва"] = &model.Place{Address: "Москва", Lat: &lat, Lon: &lon}

	geo := &stubGeocoder{point: model.Point{Lat: 1, Lon: 1}}
	cache := New(repo, geo, nil)

	place, err := cache.Locate(context.Background(), "Москва")
	if err != nil {
		t.Fatalf("Locate error: %v", err)
	}
	if *place.Lat != 55.75 {
		t.Fatalf("lat = %v, want cached 55.75", *place.Lat)
	}
	if geo.calls.Load() != 0 {
		t.Fatalf("geocoder calls = %d, want 0", geo.calls.Load())
	}
}

func TestLocate_GeocoderFailureReturnsUnresolved(t *testing.T) {
	repo := newStubRepo()
	geo := &stubGeocoder{err: errors.New("provider down")}
	cache := New(repo, geo, nil)

	place, err := cache.Locate(context.Background(), "Тверь")
	if err != nil {
		t.Fatalf("Locate error: %v", err)
	}
	if place.Resolved() {
		t.Fatalf("place must stay unresolved on geocoder failure")
	}
}

func TestLocate_ConcurrentSameAddressSingleRow(t *testing.T) {
	repo := newStubRepo()
	geo := &stubGeocoder{point: model.Point{Lat: 55.75, Lon: 37.61}}
	cache := New(repo, geo, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Locate(context.Background(), "Москва"); err != nil {
				t.Errorf("Locate error: %v", err)
			}
		}()
	}
	wg.Wait()

	if repo.inserts != 1 {
		t.Fatalf("inserts = %d, want 1", repo.inserts)
	}
	if len(repo.places) != 1 {
		t.Fatalf("rows = %d, want 1", len(repo.places))
	}
}

func TestResolveMany_DeduplicatesAndSkipsEmpty(t *testing.T) {
	repo := newStubRepo()
	geo := &stubGeocoder{point: model.Point{Lat: 55.75, Lon: 37.61}}
	cache := New(repo, geo, nil)

	points, err := cache.ResolveMany(context.Background(), []string{"Москва", "", "Москва", "  "})
	if err != nil {
		t.Fatalf("ResolveMany error: %v", err)
	}

	if len(points) != 1 {
		t.Fatalf("points = %d, want 1", len(points))
	}
	if geo.calls.Load() != 1 {
		t.Fatalf("geocoder calls = %d, want 1", geo.calls.Load())
	}
}

func TestResolveMany_UnresolvedOmitted(t *testing.T) {
	repo := newStubRepo()
	geo := &stubGeocoder{err: errors.New("provider down")}
	cache := New(repo, geo, nil)

	points, err := cache.ResolveMany(context.Background(), []string{"Москва"})
	if err != nil {
		t.Fatalf("ResolveMany error: %v", err)
	}
	if len(points) != 0 {
		t.Fatalf("points = %d, want 0", len(points))
	}
}
