package importer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kirinyoku/classgo/internal/domain"
	"github.com/kirinyoku/classgo/internal/repository/memory"
	"github.com/kirinyoku/classgo/internal/service/conflict"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []domain.SeatEvent
}

func (r *recorder) Dispatch(_ context.Context, ev domain.SeatEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type fixture struct {
	store        *memory.Store
	validator    *Validator
	importer     *Importer
	events       *recorder
	studioID     int64
	instructorID int64
	classID      int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ctx := context.Background()
	now := time.Date(2030, 6, 1, 8, 0, 0, 0, time.UTC)

	f := &fixture{
		store:  memory.New().WithClock(func() time.Time { return now }),
		events: &recorder{},
	}

	const yoga = 1
	f.classID = f.store.AddClass(domain.Class{Name: "Yoga", DisciplineID: yoga})
	f.store.AddClass(domain.Class{Name: "Pilates", DisciplineID: 2})

	f.instructorID = f.store.AddInstructor(domain.Instructor{DocumentNumber: "12345678", Name: "Ana", Active: true})
	f.store.AddInstructor(domain.Instructor{DocumentNumber: "87654321", Name: "Luis", Active: false})
	f.store.Certify(f.instructorID, yoga)

	layout := domain.Layout{Rows: 4, Columns: 5, Addressing: domain.AddressingRowMajor}
	f.studioID = f.store.AddStudio(domain.Studio{Name: "Sala A", Layout: layout, Active: true})
	_, err := f.store.ReplaceSeats(ctx, f.studioID, domain.BuildSeatGrid(f.studioID, layout))
	require.NoError(t, err)

	f.store.AddStudio(domain.Studio{Name: "Sala Azul", Active: true})
	f.store.AddStudio(domain.Studio{Name: "Sala B", Active: true})
	f.store.AddStudio(domain.Studio{Name: "Salón Norte", Active: true})
	f.store.AddStudio(domain.Studio{Name: "Sala Cerrada", Active: false})

	f.validator = NewValidator(f.store, conflict.New(f.store), time.UTC).
		WithClock(func() time.Time { return now })
	f.importer = New(f.store, f.validator, f.store, f.store, f.events, nil)

	return f
}

func validRow() Row {
	return Row{
		Class:              Text("Yoga"),
		InstructorDocument: Text("12345678"),
		Studio:             Text("Sala A"),
		Date:               Text("15/06/2030"),
		StartTime:          Text("09:00"),
		EndTime:            Text("09:45"),
		Capacity:           Number(20),
	}
}
