package registry

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func mustCode(t *testing.T, value string) BundleCode {
	t.Helper()
	code, err := NewBundleCode(value)
	if err != nil {
		t.Fatalf("unexpected bundle code error: %v", err)
	}
	return code
}

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:registry_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Bundle{}, &File{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

type staticCodeProvider struct {
	code string
}

func (p *staticCodeProvider) NewCode() (string, error) {
	return p.code, nil
}

func newTestService(t *testing.T, db *gorm.DB, clock func() time.Time) *Service {
	t.Helper()
	if clock == nil {
		clock = time.Now
	}
	service, err := NewService(ServiceConfig{
		Database:     db,
		Clock:        clock,
		CodeProvider: NewRandomCodeProvider(),
	})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return service
}
