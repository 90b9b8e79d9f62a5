package storage

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsConflict(t *testing.T) {
	exclusion := &pgconn.PgError{Code: "23P01", ConstraintName: "appointments_staff_no_overlap"}
	if !IsConflict(fmt.Errorf("insert: %w", exclusion)) {
		t.Fatal("expected wrapped 23P01 to be a conflict")
	}
	if IsConflict(&pgconn.PgError{Code: "23505"}) {
		t.Fatal("unique violation is not an overlap conflict")
	}
	if IsConflict(errors.New("boom")) {
		t.Fatal("plain error is not a conflict")
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(fmt.Errorf("get: %w", pgx.ErrNoRows)) {
		t.Fatal("expected wrapped ErrNoRows to be not found")
	}
}

func TestSchemaHasOverlapBackstop(t *testing.T) {
	for _, want := range []string{
		"btree_gist",
		"EXCLUDE USING gist",
		"tstzrange(start_time, end_time, '[)') WITH &&",
		"WHERE (status IN ('draft', 'confirmed', 'in_progress'))",
	} {
		if !strings.Contains(schemaSQL, want) {
			t.Fatalf("schema is missing %q", want)
		}
	}
}

func TestSchemaHasPromoCodes(t *testing.T) {
	promoAt := strings.Index(schemaSQL, "CREATE TABLE IF NOT EXISTS promo_codes")
	apptAt := strings.Index(schemaSQL, "CREATE TABLE IF NOT EXISTS appointments")
	if promoAt < 0 || apptAt < 0 || promoAt > apptAt {
		t.Fatal("promo_codes must be created before appointments references it")
	}
	if !strings.Contains(schemaSQL, "promo_code_id") {
		t.Fatal("appointments must record the applied promo code")
	}
}
