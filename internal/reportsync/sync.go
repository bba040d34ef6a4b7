package reportsync

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"

	"github.com/rhoekstra/pattern-engine/internal/engine"
	"github.com/rhoekstra/pattern-engine/internal/logger"
)

// SyncReport publishes an analysis report to the Notion summary database.
// The database keeps one page per administration: if a page with the same
// administration title exists it is updated in place, otherwise a new page
// is created. With dryRun set, the intended action is logged and nothing
// is written.
func SyncReport(ctx context.Context, notionClient NotionService, notionDBID string, report *engine.AnalysisReport, patterns []engine.VerbPattern, dryRun bool) error {
	log := logger.FromContext(ctx)

	log.Info().
		Str("administration", report.Administration).
		Bool("dry_run", dryRun).
		Int("patterns", report.PatternsDiscovered).
		Msg("Starting report sync to Notion")

	pages, err := queryAllNotionPages(ctx, notionClient, notionDBID)
	if err != nil {
		return fmt.Errorf("failed to query Notion pages: %w", err)
	}

	// Find the existing summary page for this administration, if any.
	var existingPageID string
	for _, page := range pages {
		if extractAdministration(page) == report.Administration {
			existingPageID = string(page.ID)
			break
		}
	}

	if dryRun {
		if existingPageID != "" {
			log.Info().
				Str("administration", report.Administration).
				Str("page_id", existingPageID).
				Msg("[DRY RUN] Would update existing Notion summary page")
		} else {
			log.Info().
				Str("administration", report.Administration).
				Msg("[DRY RUN] Would create new Notion summary page")
		}
		return nil
	}

	props := ReportToNotionProperties(report, patterns)

	if existingPageID != "" {
		if _, err := notionClient.UpdatePage(ctx, existingPageID, props); err != nil {
			return fmt.Errorf("failed to update Notion summary page: %w", err)
		}
		log.Info().
			Str("administration", report.Administration).
			Str("page_id", existingPageID).
			Msg("Updated Notion summary page")
		return nil
	}

	page, err := notionClient.CreatePage(ctx, notionDBID, props)
	if err != nil {
		return fmt.Errorf("failed to create Notion summary page: %w", err)
	}
	log.Info().
		Str("administration", report.Administration).
		Str("page_id", string(page.ID)).
		Msg("Created Notion summary page")

	return nil
}

// queryAllNotionPages queries all pages from a Notion database and returns them.
// Handles pagination automatically.
func queryAllNotionPages(ctx context.Context, notionClient NotionService, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			PageSize: 100,
		}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notionClient.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}

// extractAdministration extracts the administration name from a Notion page's
// title property. Returns empty string if not found.
func extractAdministration(page notionapi.Page) string {
	if prop, ok := page.Properties["Administration"]; ok {
		if title, ok := prop.(*notionapi.TitleProperty); ok {
			if len(title.Title) > 0 {
				return title.Title[0].PlainText
			}
		}
	}
	return ""
}
