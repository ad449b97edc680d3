package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kirillkom/property-doc-engine/internal/core/domain"
	"github.com/kirillkom/property-doc-engine/internal/infrastructure/resilience"
)

func TestDirectoryListLeasesBuildsStatusFilter(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	start := time.Date(2023, 9, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`WHERE l.status IN \(\$1,\$2\)`).
		WithArgs("active", "pending").
		WillReturnRows(sqlmock.NewRows([]string{"id", "property_id", "status", "start_date", "id", "first_name", "last_name"}).
			AddRow("l-1", "p-1", "active", start, "tn-1", "Jean", "Dupont"))

	leases, err := NewDirectoryRepository(db, nil).ListLeasesByStatus(context.Background(), domain.LeaseActive, domain.LeasePending)
	if err != nil {
		t.Fatalf("ListLeasesByStatus() error = %v", err)
	}
	if len(leases) != 1 || leases[0].Tenant.LastName != "Dupont" || leases[0].Status != domain.LeaseActive {
		t.Fatalf("unexpected leases %+v", leases)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDirectoryListCategories(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("FROM categories").
		WillReturnRows(sqlmock.NewRows([]string{"id", "label"}).
			AddRow("c-1", "Loyers").
			AddRow("c-2", "Taxe foncière"))

	categories, err := NewDirectoryRepository(db, nil).ListCategories(context.Background())
	if err != nil {
		t.Fatalf("ListCategories() error = %v", err)
	}
	if len(categories) != 2 || categories[1].Label != "Taxe foncière" {
		t.Fatalf("unexpected categories %+v", categories)
	}
}

func TestDirectoryRetriesTransientPostgresErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	executor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryMultiplier:     1,
	})

	mock.ExpectQuery("FROM properties").
		WillReturnError(&pgconn.PgError{Code: "40001", Message: "serialization failure"})
	mock.ExpectQuery("FROM properties").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "address"}).
			AddRow("p-1", "Résidence Les Tilleuls", "12 rue des Lilas"))

	properties, err := NewDirectoryRepository(db, executor).ListProperties(context.Background())
	if err != nil {
		t.Fatalf("ListProperties() error = %v", err)
	}
	if len(properties) != 1 || properties[0].ID != "p-1" {
		t.Fatalf("unexpected properties %+v", properties)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDirectoryWrapsExhaustedRetriesAsTemporary(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	executor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    1,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryMultiplier:     1,
	})
	mock.ExpectQuery("FROM categories").
		WillReturnError(&pgconn.PgError{Code: "08006", Message: "connection failure"})

	_, err = NewDirectoryRepository(db, executor).ListCategories(context.Background())
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
}

func TestClassifyPostgresError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
		record    bool
	}{
		{name: "canceled", err: context.Canceled, retryable: false, record: false},
		{name: "not found", err: domain.ErrDocumentNotFound, retryable: false, record: false},
		{name: "deadlock", err: &pgconn.PgError{Code: "40P01"}, retryable: true, record: true},
		{name: "syntax", err: &pgconn.PgError{Code: "42601"}, retryable: false, record: true},
		{name: "plain", err: errors.New("boom"), retryable: false, record: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			class := classifyPostgresError(tc.err)
			if class.Retryable != tc.retryable || class.RecordFailure != tc.record {
				t.Fatalf("classifyPostgresError(%v) = %+v", tc.err, class)
			}
		})
	}
}
