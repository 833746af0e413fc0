package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tomsrud/auctionhouse/internal/config"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
		check   func(t *testing.T, cfg *config.Config)
	}{
		{
			name: "valid full config",
			yaml: `
database:
  host: "db.example.com"
  port: 5433
  user: "auctiond"
  password: "secret"
  dbname: "auctions"
  sslmode: "require"
  driver: "sqlx"
server:
  port: 9090
ledger:
  escrow_account: "house-escrow"
  admin_account: "treasury"
telemetry:
  service_name: "my-auctiond"
  otlp_endpoint: "localhost:4318"
`,
			wantErr: false,
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				if cfg.Database.Port != 5433 {
					t.Errorf("got db port %d, want %d", cfg.Database.Port, 5433)
				}
				if cfg.Server.Port != 9090 {
					t.Errorf("got server port %d, want %d", cfg.Server.Port, 9090)
				}
				if cfg.Ledger.EscrowAccount != "house-escrow" {
					t.Errorf("got escrow account %q, want %q", cfg.Ledger.EscrowAccount, "house-escrow")
				}
				if cfg.Telemetry.ServiceName != "my-auctiond" {
					t.Errorf("got service name %q, want %q", cfg.Telemetry.ServiceName, "my-auctiond")
				}
			},
		},
		{
			name:    "defaults applied",
			yaml:    `{}`,
			wantErr: false,
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				if cfg.Database.Host != "localhost" {
					t.Errorf("got db host %q, want %q", cfg.Database.Host, "localhost")
				}
				if cfg.Database.Port != 5432 {
					t.Errorf("got db port %d, want %d", cfg.Database.Port, 5432)
				}
				if cfg.Server.Port != 8080 {
					t.Errorf("got server port %d, want %d", cfg.Server.Port, 8080)
				}
				if cfg.Ledger.EscrowAccount != "auction-escrow" {
					t.Errorf("got escrow account %q, want %q", cfg.Ledger.EscrowAccount, "auction-escrow")
				}
				if cfg.Ledger.AdminAccount != "mint-admin" {
					t.Errorf("got admin account %q, want %q", cfg.Ledger.AdminAccount, "mint-admin")
				}
				if cfg.Telemetry.ServiceName != "auctiond" {
					t.Errorf("got service name %q, want %q", cfg.Telemetry.ServiceName, "auctiond")
				}
				if cfg.LeaderElection.LeaseName != "auctiond-leader" {
					t.Errorf("got lease name %q, want %q", cfg.LeaderElection.LeaseName, "auctiond-leader")
				}
			},
		},
		{
			name:    "invalid yaml",
			yaml:    `{{{invalid`,
			wantErr: true,
		},
		{
			name: "memory driver accepted",
			yaml: `
database:
  driver: "memory"
`,
			wantErr: false,
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				if cfg.Database.Driver != "memory" {
					t.Errorf("got driver %q, want %q", cfg.Database.Driver, "memory")
				}
			},
		},
		{
			name: "stdsql driver accepted",
			yaml: `
database:
  driver: "stdsql"
`,
			wantErr: false,
		},
		{
			name: "invalid driver rejected",
			yaml: `
database:
  driver: "mongodb"
`,
			wantErr: true,
		},
		{
			name:    "default driver is sqlx",
			yaml:    `{}`,
			wantErr: false,
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				if cfg.Database.Driver != "sqlx" {
					t.Errorf("got driver %q, want %q", cfg.Database.Driver, "sqlx")
				}
			},
		},
		{
			name: "empty escrow account rejected",
			yaml: `
ledger:
  escrow_account: ""
`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "config.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0o644); err != nil {
				t.Fatal(err)
			}

			cfg, err := config.Load(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil && cfg != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := config.Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for nonexistent file")
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "user",
		Password: "pass",
		DBName:   "testdb",
		SSLMode:  "disable",
	}
	want := "host=localhost port=5432 user=user password=pass dbname=testdb sslmode=disable"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
