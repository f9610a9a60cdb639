package feishusdk

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const searchPageSize = 500

// Row is one Bitable record.
type Row struct {
	RecordID string
	Fields   map[string]any
}

// FindRecords returns every row of the table at tableURL matching filter.
func (c *Client) FindRecords(ctx context.Context, tableURL string, filter *FilterInfo) ([]Row, error) {
	ref, err := c.table(ctx, tableURL)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	q := searchQuery{
		appToken: ref.AppToken,
		tableID:  ref.TableID,
		viewID:   ref.ViewID,
		pageSize: searchPageSize,
		filter:   filter,
	}
	var rows []Row
	pages := 0
	for {
		page, err := c.tables.search(ctx, q)
		if err != nil {
			return nil, errors.Wrapf(err, "feishu: find records in %s (filter %s)", ref.TableID, filterJSON(filter))
		}
		pages++
		rows = append(rows, page.rows...)
		if !page.hasMore || page.pageToken == "" {
			break
		}
		q.pageToken = page.pageToken
	}
	log.Debug().Str("table_id", ref.TableID).Str("filter", filterJSON(filter)).
		Int("pages", pages).Int("rows", len(rows)).Dur("elapsed", time.Since(start)).
		Msg("feishu: records found")
	return rows, nil
}

// CreateRecord adds one row and returns its record id.
func (c *Client) CreateRecord(ctx context.Context, tableURL string, fields map[string]any) (string, error) {
	if len(fields) == 0 {
		return "", errors.New("feishu: create record without fields")
	}
	ref, err := c.table(ctx, tableURL)
	if err != nil {
		return "", err
	}
	id, err := c.tables.create(ctx, ref.AppToken, ref.TableID, fields)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", errors.Errorf("feishu: create record in %s returned no record id", ref.TableID)
	}
	return id, nil
}

// UpdateRecord merges fields into row recordID.
func (c *Client) UpdateRecord(ctx context.Context, tableURL, recordID string, fields map[string]any) error {
	recordID = strings.TrimSpace(recordID)
	if recordID == "" {
		return errors.New("feishu: update record without record id")
	}
	if len(fields) == 0 {
		return errors.New("feishu: update record without fields")
	}
	ref, err := c.table(ctx, tableURL)
	if err != nil {
		return err
	}
	return c.tables.update(ctx, ref.AppToken, ref.TableID, recordID, fields)
}
