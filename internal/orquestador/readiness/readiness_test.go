package readiness

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCheckTodoSano(t *testing.T) {
	ok := func(context.Context) error { return nil }
	agg := New(
		Probe{Nombre: "catalogo", Check: ok},
		Probe{Nombre: "inventario", Check: ok},
		Probe{Nombre: "recetas", Check: ok},
	)

	rep := agg.Check(context.Background())
	if !rep.Ready {
		t.Error("todos los probes sanos pero ready = false")
	}
	if len(rep.Servicios) != 3 {
		t.Fatalf("servicios = %d, esperaba 3", len(rep.Servicios))
	}
	for nombre, s := range rep.Servicios {
		if !s.OK || s.Error != "" {
			t.Errorf("%s = %+v, esperaba OK sin error", nombre, s)
		}
	}
}

func TestCheckUnoCaidoReportaTodos(t *testing.T) {
	agg := New(
		Probe{Nombre: "catalogo", Check: func(context.Context) error { return nil }},
		Probe{Nombre: "inventario", Check: func(context.Context) error { return errors.New("connection refused") }},
		Probe{Nombre: "recetas", Check: func(context.Context) error { return nil }},
	)

	rep := agg.Check(context.Background())
	if rep.Ready {
		t.Error("inventario caído pero ready = true")
	}
	if len(rep.Servicios) != 3 {
		t.Fatalf("servicios = %d, el reporte debe nombrarlos a todos", len(rep.Servicios))
	}
	if s := rep.Servicios["inventario"]; s.OK || s.Error != "connection refused" {
		t.Errorf("inventario = %+v, esperaba caído con su error", s)
	}
	if !rep.Servicios["catalogo"].OK || !rep.Servicios["recetas"].OK {
		t.Error("los servicios sanos deben seguir reportando OK")
	}
}

func TestCheckProbeLentoVenceTimeout(t *testing.T) {
	agg := New(
		Probe{Nombre: "recetas", Check: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}},
	).WithTimeout(20 * time.Millisecond)

	inicio := time.Now()
	rep := agg.Check(context.Background())
	if elapsed := time.Since(inicio); elapsed > 500*time.Millisecond {
		t.Fatalf("el probe colgado bloqueó el check %v", elapsed)
	}
	if rep.Ready || rep.Servicios["recetas"].OK {
		t.Error("un probe que vence su deadline cuenta como caído")
	}
}

func TestCheckConcurrente(t *testing.T) {
	// Tres probes de 30ms en paralelo deben tardar ~30ms, no ~90ms.
	lento := func(ctx context.Context) error {
		select {
		case <-time.After(30 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	agg := New(
		Probe{Nombre: "a", Check: lento},
		Probe{Nombre: "b", Check: lento},
		Probe{Nombre: "c", Check: lento},
	)

	inicio := time.Now()
	rep := agg.Check(context.Background())
	if elapsed := time.Since(inicio); elapsed > 80*time.Millisecond {
		t.Errorf("check tardó %v, los probes no corrieron en paralelo", elapsed)
	}
	if !rep.Ready {
		t.Error("ready = false con todos los probes sanos")
	}
}
