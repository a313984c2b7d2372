package db

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/zulandar/mhai/internal/config"
	"github.com/zulandar/mhai/internal/models"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.DatabaseConfig
		want string
	}{
		{
			name: "default local",
			cfg:  config.DatabaseConfig{Host: "127.0.0.1", Port: 3306, User: "root", Name: "mhai"},
			want: "root@tcp(127.0.0.1:3306)/mhai?parseTime=true",
		},
		{
			name: "with password",
			cfg:  config.DatabaseConfig{Host: "10.0.0.5", Port: 3307, User: "mhai", Password: "secret", Name: "mhai_prod"},
			want: "mhai:secret@tcp(10.0.0.5:3307)/mhai_prod?parseTime=true",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DSN(tt.cfg)
			if got != tt.want {
				t.Errorf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConnect_UnsupportedDriver(t *testing.T) {
	_, err := Connect(config.DatabaseConfig{Driver: "postgres"})
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
	if !strings.Contains(err.Error(), `db: unsupported driver "postgres"`) {
		t.Errorf("error = %q", err.Error())
	}
}

func TestConnect_SQLiteFileAndMigrate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "mhai.db")
	gormDB, err := Connect(config.DatabaseConfig{Driver: config.DriverSQLite, Path: path})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := AutoMigrate(gormDB); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	for _, m := range AllModels() {
		if !gormDB.Migrator().HasTable(m) {
			t.Errorf("table for %T not created", m)
		}
	}

	user := models.User{Username: "alice"}
	if err := gormDB.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	msg := models.Message{Surface: models.SurfaceDiary, UserID: user.ID, Prompt: "hello"}
	if err := gormDB.Create(&msg).Error; err != nil {
		t.Fatalf("create message: %v", err)
	}
	if msg.ID == 0 {
		t.Error("message ID not assigned")
	}

	var got models.Message
	if err := gormDB.First(&got, msg.ID).Error; err != nil {
		t.Fatalf("load message: %v", err)
	}
	if got.Status != models.StatusStarted {
		t.Errorf("Status = %q, want default %q", got.Status, models.StatusStarted)
	}
}

func TestConnect_MySQLError(t *testing.T) {
	// Port 1 is unlikely to have a MySQL server; expect connection error.
	_, err := Connect(config.DatabaseConfig{Driver: config.DriverMySQL, Host: "127.0.0.1", Port: 1, User: "root", Name: "nonexistent"})
	if err == nil {
		t.Fatal("expected error connecting to invalid port")
	}
	if !strings.Contains(err.Error(), "db: connect to mysql:127.0.0.1:1/nonexistent") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestAllModels_Count(t *testing.T) {
	if n := len(AllModels()); n != 3 {
		t.Errorf("AllModels() returned %d models, want 3", n)
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		cfg  config.DatabaseConfig
		want string
	}{
		{config.DatabaseConfig{Driver: config.DriverSQLite, Path: "data/mhai.db"}, "sqlite:data/mhai.db"},
		{config.DatabaseConfig{Driver: config.DriverMySQL, Host: "db", Port: 3306, Name: "mhai", Password: "secret"}, "mysql:db:3306/mhai"},
	}
	for _, tt := range tests {
		if got := Describe(tt.cfg); got != tt.want {
			t.Errorf("Describe() = %q, want %q", got, tt.want)
		}
	}
}
