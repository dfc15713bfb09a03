package lookup

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/foundationrisk/soilrisk/internal/model"
	"github.com/foundationrisk/soilrisk/internal/store"
	"github.com/foundationrisk/soilrisk/pkg/geocode"
	"github.com/foundationrisk/soilrisk/pkg/overpass"
	"github.com/foundationrisk/soilrisk/pkg/sda"
)

type fakeGeocoder struct {
	mu     sync.Mutex
	points map[string]geocode.Result
	err    error
	calls  int
}

func (f *fakeGeocoder) Geocode(_ context.Context, addr geocode.AddressInput) (*geocode.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	key := addr.ZipCode
	if key == "" {
		key = addr.Street
	}
	if r, ok := f.points[key]; ok {
		r.Matched = true
		return &r, nil
	}
	return &geocode.Result{Matched: false}, nil
}

type fakeSoil struct {
	mu    sync.Mutex
	rec   *sda.Record
	err   error
	calls int
}

func (f *fakeSoil) Lookup(_ context.Context, _, _ float64) (*sda.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.rec, f.err
}

type fakeHoods struct {
	places []overpass.Place
}

func (f *fakeHoods) Neighborhoods(_ context.Context, _, _ float64) ([]overpass.Place, error) {
	return f.places, nil
}

type memStore struct {
	mu        sync.Mutex
	locs      map[string]*model.Location // by zip
	soil      map[string]*model.SoilRecord
	locErr    error
	soilErr   error
	listErr   error
	bulkErr   error
	soilCalls int
	bulkCalls int
}

func newMemStore() *memStore {
	return &memStore{locs: map[string]*model.Location{}, soil: map[string]*model.SoilRecord{}}
}

func (m *memStore) UpsertLocation(_ context.Context, loc *model.Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locErr != nil {
		return m.locErr
	}
	if existing, ok := m.locs[loc.PostalCode]; ok {
		loc.ID = existing.ID
	} else if loc.ID == "" {
		loc.ID = uuid.NewString()
	}
	cp := *loc
	m.locs[loc.PostalCode] = &cp
	return nil
}

func (m *memStore) UpsertLocations(ctx context.Context, locs []model.Location) (int64, error) {
	m.mu.Lock()
	m.bulkCalls++
	err := m.bulkErr
	m.mu.Unlock()
	if err != nil {
		return 0, err
	}
	for i := range locs {
		if err := m.UpsertLocation(ctx, &locs[i]); err != nil {
			return 0, err
		}
	}
	return int64(len(locs)), nil
}

func (m *memStore) GetLocationBySlug(_ context.Context, slug string) (*model.Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.locs {
		if l.Slug == slug {
			cp := *l
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListLocations(_ context.Context, filter store.LocationFilter) ([]model.Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []model.Location
	for _, l := range m.locs {
		if _, _, ok := l.Coordinates(); filter.WithCoordinates && !ok {
			continue
		}
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PostalCode < out[j].PostalCode })
	return out, nil
}

func (m *memStore) UpsertSoilRecord(_ context.Context, rec *model.SoilRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.soilCalls++
	if m.soilErr != nil {
		return m.soilErr
	}
	cp := *rec
	m.soil[rec.LocationID] = &cp
	return nil
}

func (m *memStore) GetSoilRecord(_ context.Context, id string) (*model.SoilRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.soil[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) put(city, state, zip string, lat, lon float64) *model.Location {
	loc := &model.Location{City: city, State: state, PostalCode: zip, Slug: model.PageSlug(city, state, zip)}
	loc.SetCoordinates(lat, lon)
	_ = m.UpsertLocation(context.Background(), loc)
	return loc
}

func pi(v float64) *float64 { return &v }
