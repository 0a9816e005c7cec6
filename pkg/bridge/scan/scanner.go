package scan

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tendant/s3-ipfs-bridge/pkg/bridge"
)

// Scanner walks blob store objects under a prefix and transfers each one
// into the content store.
type Scanner struct {
	svc bridge.Service
}

// New creates a new Scanner instance.
func New(svc bridge.Service) *Scanner {
	return &Scanner{svc: svc}
}

// Options configures a scan.
type Options struct {
	// Prefix limits the scan to keys starting with it
	Prefix string

	// BatchSize is the listing page size (default: 100)
	BatchSize int

	// Concurrency bounds the transfers in flight per batch (default: 4)
	Concurrency int

	// DryRun lists the keys that would be transferred without transferring them
	DryRun bool

	// OnProgress is called after each batch (optional)
	OnProgress func(processed, found int64)
}

// Result contains statistics about a scan.
type Result struct {
	TotalFound       int64    `json:"totalFound"`
	TotalTransferred int64    `json:"totalTransferred"`
	TotalExisting    int64    `json:"totalExisting"`
	TotalFailed      int64    `json:"totalFailed"`
	FailedKeys       []string `json:"failedKeys,omitempty"`
}

// Scan lists objects batch by batch and calls TransferIn for each key. A
// failed key is recorded and the scan continues; only listing failures and
// cancellation stop it.
func (s *Scanner) Scan(ctx context.Context, opts Options) (*Result, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}

	result := &Result{}
	var mu sync.Mutex
	token := ""

	for {
		page, err := s.svc.ListObjects(ctx, bridge.ListObjectsRequest{
			Prefix:            opts.Prefix,
			MaxKeys:           opts.BatchSize,
			ContinuationToken: token,
		})
		if err != nil {
			return result, fmt.Errorf("failed to list objects: %w", err)
		}

		result.TotalFound += int64(len(page.Objects))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Concurrency)
		for _, obj := range page.Objects {
			key := obj.Key
			if opts.DryRun {
				slog.Info("Dry run: would transfer", "blob_key", key, "size", obj.Size)
				continue
			}

			g.Go(func() error {
				transfer, err := s.svc.TransferIn(gctx, bridge.TransferInRequest{BlobKey: key})

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err != nil:
					if ctxErr := gctx.Err(); ctxErr != nil {
						return ctxErr
					}
					result.TotalFailed++
					result.FailedKeys = append(result.FailedKeys, key)
					slog.Error("Failed to transfer object", "blob_key", key, "err", err)
				case transfer.Existing:
					result.TotalExisting++
				default:
					result.TotalTransferred++
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return result, err
		}

		if opts.OnProgress != nil {
			opts.OnProgress(result.TotalTransferred+result.TotalExisting+result.TotalFailed, result.TotalFound)
		}

		if !page.IsTruncated || page.NextContinuationToken == "" {
			break
		}
		token = page.NextContinuationToken
	}

	sort.Strings(result.FailedKeys)
	return result, nil
}
