package updater

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/cloudflare/cloudflare-go"
)

// NewCloudflare returns a provider for the zones visible to a Cloudflare API token.
// The token needs Zone:Read and DNS:Edit permissions.
func NewCloudflare(token string, opts ...cloudflare.Option) (*Cloudflare, error) {
	if token == "" {
		return nil, errors.New("cloudflare token cannot be empty")
	}
	cf := new(Cloudflare)
	var err error
	cf.api, err = cloudflare.NewWithAPIToken(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("error creating cloudflare api client: %w", err)
	}
	cf.logger = discard
	cf.comment = "managed by dns-updater"
	return cf, nil
}

// Cloudflare implements updater.Provider.
//
// It should be constructed using NewCloudflare.
type Cloudflare struct {
	api     *cloudflare.API
	logger  *log.Logger
	comment string // attached to each new DNS entry

	mu    sync.Mutex
	zones []cloudflare.Zone // from the last successful listing
}

func (cf *Cloudflare) SetLogger(l *log.Logger) { cf.logger = l }

func (cf *Cloudflare) SetHTTPClient(c *http.Client) {
	cloudflare.HTTPClient(c)(cf.api)
}

// ListRecords returns the A records of every zone the token can see.
// The zone list is fetched again on every call so zones added to the token are picked up.
func (cf *Cloudflare) ListRecords(ctx context.Context) ([]Record, error) {
	zones, err := cf.listZones(ctx, true)
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, z := range zones {
		records, _, err := cf.api.ListDNSRecords(ctx, cloudflare.ZoneIdentifier(z.ID), cloudflare.ListDNSRecordsParams{
			Type: TypeA,
		})
		if err != nil {
			return nil, fmt.Errorf("error listing records for zone %s: %w", z.Name, err)
		}
		cf.logger.Printf("found %d A records in zone %s", len(records), z.Name)
		for _, r := range records {
			out = append(out, Record{Name: r.Name, Type: r.Type, Value: r.Content})
		}
	}
	return out, nil
}

func (cf *Cloudflare) AddRecord(ctx context.Context, r Record) error {
	zid, err := cf.zoneIDFromDomain(ctx, r.Name)
	if err != nil {
		return err
	}
	cf.logger.Printf("creating record for %s...", r)
	record, err := cf.api.CreateDNSRecord(ctx, cloudflare.ZoneIdentifier(zid), cloudflare.CreateDNSRecordParams{
		Type:    r.Type,
		Name:    r.Name,
		Content: r.Value,
		ZoneID:  zid,
		TTL:     60,
		Comment: cf.comment,
	})
	if err != nil {
		return fmt.Errorf("error creating DNS record: %w", err)
	}
	cf.logger.Printf("successfully added record: %+v", record)
	return nil
}

// RemoveRecord deletes every record matching name, type and value.
func (cf *Cloudflare) RemoveRecord(ctx context.Context, r Record) error {
	zid, err := cf.zoneIDFromDomain(ctx, r.Name)
	if err != nil {
		return err
	}
	records, _, err := cf.api.ListDNSRecords(ctx, cloudflare.ZoneIdentifier(zid), cloudflare.ListDNSRecordsParams{
		Type:    r.Type,
		Name:    r.Name,
		Content: r.Value,
	})
	if err != nil {
		return fmt.Errorf("error listing records for %s: %w", r.Name, err)
	}
	for _, rec := range records {
		cf.logger.Printf("deleting DNS record %s for %s...", rec.ID, r)
		if err := cf.api.DeleteDNSRecord(ctx, cloudflare.ZoneIdentifier(zid), rec.ID); err != nil {
			return fmt.Errorf("unable to delete DNS record %s: %w", rec.ID, err)
		}
	}
	return nil
}

func (cf *Cloudflare) listZones(ctx context.Context, refresh bool) ([]cloudflare.Zone, error) {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	if cf.zones != nil && !refresh {
		return cf.zones, nil
	}
	zones, err := cf.api.ListZones(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing zones: %w", err)
	}
	cf.zones = zones
	return zones, nil
}

// zoneIDFromDomain picks the longest zone name that is a suffix of domain.
// A miss in the cached zones is retried once against a fresh listing.
func (cf *Cloudflare) zoneIDFromDomain(ctx context.Context, domain string) (string, error) {
	for _, refresh := range []bool{false, true} {
		zones, err := cf.listZones(ctx, refresh)
		if err != nil {
			return "", err
		}
		if zid := matchZone(zones, domain); zid != "" {
			return zid, nil
		}
	}
	return "", fmt.Errorf("unable to find a zone matching \"%s\"", domain)
}

func matchZone(zones []cloudflare.Zone, domain string) (zid string) {
	max := 0
	for _, z := range zones {
		if (domain == z.Name || strings.HasSuffix(domain, "."+z.Name)) && len(z.Name) > max {
			max, zid = len(z.Name), z.ID
		}
	}
	return zid
}
