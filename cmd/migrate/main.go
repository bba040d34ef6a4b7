package main

import (
	"context"
	"crypto/sha256"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/rhoekstra/pattern-engine/internal/logger"
)

// migration is a single numbered SQL file from the migrations directory.
type migration struct {
	Version  int
	Name     string
	SQL      string
	Checksum string
}

// migrationFilePattern matches files like 0001_create_verb_patterns.sql.
var migrationFilePattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

func main() {
	var (
		projectID     = flag.String("project", os.Getenv("BQ_PROJECT"), "BigQuery project ID (or set BQ_PROJECT env)")
		datasetID     = flag.String("dataset", os.Getenv("BQ_DATASET"), "BigQuery dataset ID (or set BQ_DATASET env)")
		appliedBy     = flag.String("applied-by", "migrate-cli", "Name recorded as the applier of new migrations")
		migrationsDir = flag.String("migrations", "migrations/bigquery", "Path to migrations directory")
	)
	flag.Parse()

	log := logger.New()

	if *projectID == "" || *datasetID == "" {
		log.Fatal().Msg("Error: --project and --dataset are required (or BQ_PROJECT/BQ_DATASET)")
	}

	ctx := context.Background()

	client, err := bigquery.NewClient(ctx, *projectID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer client.Close()

	m := &migrator{
		client:    client,
		projectID: *projectID,
		datasetID: *datasetID,
		appliedBy: *appliedBy,
	}

	log.Info().Str("project", *projectID).Str("dataset", *datasetID).Msg("Connected to BigQuery")

	if err := m.ensureLedger(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure schema_migrations table")
	}

	pending, err := readMigrations(*migrationsDir, *projectID, *datasetID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read migrations")
	}

	appliedVersions, err := m.appliedVersions(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read applied migrations")
	}

	log.Info().
		Int("found", len(pending)).
		Int("already_applied", len(appliedVersions)).
		Msg("Migration inventory")

	applied := 0
	for _, mig := range pending {
		if appliedVersions[mig.Version] {
			log.Info().Int("version", mig.Version).Str("name", mig.Name).Msg("Skipping applied migration")
			continue
		}

		log.Info().Int("version", mig.Version).Str("name", mig.Name).Msg("Applying migration")
		if err := m.apply(ctx, mig); err != nil {
			log.Fatal().Err(err).Int("version", mig.Version).Str("name", mig.Name).Msg("Migration failed")
		}
		applied++
	}

	if applied == 0 {
		log.Info().Msg("No new migrations to apply; dataset is up to date")
	} else {
		log.Info().Int("applied", applied).Msg("Migrations applied")
	}
}

// migrator applies numbered migrations and records them in the
// schema_migrations ledger table.
type migrator struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	appliedBy string
}

func (m *migrator) ensureLedger(ctx context.Context) error {
	sql := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS `+"`%s.%s.schema_migrations`"+` (
			version    INT64 NOT NULL,
			name       STRING NOT NULL,
			applied_at TIMESTAMP NOT NULL,
			checksum   STRING,
			applied_by STRING
		)
	`, m.projectID, m.datasetID)

	return m.run(ctx, m.client.Query(sql))
}

// appliedVersions returns the set of already applied migration versions.
func (m *migrator) appliedVersions(ctx context.Context) (map[int]bool, error) {
	sql := fmt.Sprintf(
		"SELECT version FROM `%s.%s.schema_migrations` ORDER BY version",
		m.projectID, m.datasetID)

	it, err := m.client.Query(sql).Read(ctx)
	if err != nil {
		if strings.Contains(err.Error(), "Not found") {
			return map[int]bool{}, nil
		}
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	versions := make(map[int]bool)
	for {
		var row struct {
			Version int64
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating applied migrations: %w", err)
		}
		versions[int(row.Version)] = true
	}
	return versions, nil
}

// apply executes a migration and records it in the ledger.
func (m *migrator) apply(ctx context.Context, mig migration) error {
	if err := m.run(ctx, m.client.Query(mig.SQL)); err != nil {
		return fmt.Errorf("executing migration: %w", err)
	}

	record := m.client.Query(fmt.Sprintf(`
		INSERT INTO `+"`%s.%s.schema_migrations`"+`
		(version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)
	`, m.projectID, m.datasetID))
	record.Parameters = []bigquery.QueryParameter{
		{Name: "version", Value: mig.Version},
		{Name: "name", Value: mig.Name},
		{Name: "checksum", Value: mig.Checksum},
		{Name: "applied_by", Value: m.appliedBy},
	}

	if err := m.run(ctx, record); err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}
	return nil
}

func (m *migrator) run(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	return status.Err()
}

// readMigrations loads all migration files, substitutes the project and
// dataset placeholders, and returns them sorted by version. The checksum
// is taken over the raw file so the same migration applied to different
// datasets stays recognizable.
func readMigrations(dir, projectID, datasetID string) ([]migration, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		// Allow running from within cmd/migrate.
		dir = filepath.Join("../..", dir)
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return nil, fmt.Errorf("migrations directory not found: %s", dir)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	var migrations []migration
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		version, name, ok := parseMigrationFilename(entry.Name())
		if !ok {
			continue
		}

		content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}

		migrations = append(migrations, migration{
			Version:  version,
			Name:     name,
			SQL:      substitutePlaceholders(string(content), projectID, datasetID),
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// parseMigrationFilename splits 0001_create_verb_patterns.sql into its
// version and name. Non-matching filenames report ok=false.
func parseMigrationFilename(filename string) (version int, name string, ok bool) {
	matches := migrationFilePattern.FindStringSubmatch(filename)
	if matches == nil {
		return 0, "", false
	}
	version, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, "", false
	}
	return version, matches[2], true
}

// substitutePlaceholders fills {{PROJECT_ID}} and {{DATASET_ID}} in a
// migration body.
func substitutePlaceholders(sql, projectID, datasetID string) string {
	sql = strings.ReplaceAll(sql, "{{PROJECT_ID}}", projectID)
	return strings.ReplaceAll(sql, "{{DATASET_ID}}", datasetID)
}
