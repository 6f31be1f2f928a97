// Package primer implements the Follow Primer: on first sight of a
// reader, pages their follow list from their own PDS and bulk-loads it
// into the store. See SPEC_FULL.md §4.E.
package primer

import (
	"context"
	"fmt"

	comatproto "github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/xrpc"
	"github.com/rs/zerolog"

	"github.com/feedgen/feedgen/internal/identity"
	"github.com/feedgen/feedgen/internal/store"
)

const pageLimit = 100

// Primer resolves a reader's PDS endpoint and bulk-loads their follows.
type Primer struct {
	store    *store.Store
	resolver *identity.Resolver
	log      zerolog.Logger
}

// New builds a Primer.
func New(s *store.Store, resolver *identity.Resolver, log zerolog.Logger) *Primer {
	return &Primer{store: s, resolver: resolver, log: log}
}

// PrimeIfNeeded checks whether follower has been primed already and,
// if not, pages their follow list and bulk-inserts it. Failure
// listing midway is not fatal to the caller — whatever was aggregated
// before the failure is still committed (spec.md §4.E's acknowledged
// weakness), and the primer is never retried automatically within this
// call; a later request will simply see non-empty follows and skip
// priming.
func (p *Primer) PrimeIfNeeded(ctx context.Context, follower string) error {
	primed, err := p.store.IsPrimed(ctx, follower)
	if err != nil {
		return fmt.Errorf("primer: check primed: %w", err)
	}
	if primed {
		return nil
	}

	doc, err := p.resolver.Resolve(ctx, follower)
	if err != nil {
		return fmt.Errorf("primer: resolve reader identity: %w", err)
	}
	endpoint, err := doc.PDSEndpoint()
	if err != nil {
		return fmt.Errorf("primer: resolve PDS endpoint: %w", err)
	}

	client := &xrpc.Client{Host: endpoint}

	var follows []store.Follow
	var cursor string
	for {
		resp, err := comatproto.RepoListRecords(ctx, client, "app.bsky.graph.follow", cursor, int64(pageLimit), follower, false, "", "")
		if err != nil {
			p.log.Warn().Err(err).Str("follower", follower).Msg("follow listing failed partway, committing partial set")
			break
		}

		for _, rec := range resp.Records {
			subject, ok := followSubject(rec)
			if !ok {
				continue
			}
			follows = append(follows, store.Follow{
				URI:      rec.Uri,
				Follower: follower,
				Followee: subject,
			})
		}

		if resp.Cursor == nil || *resp.Cursor == "" {
			break
		}
		cursor = *resp.Cursor
	}

	if err := p.store.PrimeFollows(ctx, follower, follows); err != nil {
		return fmt.Errorf("primer: bulk insert: %w", err)
	}
	p.log.Info().Str("follower", follower).Int("count", len(follows)).Msg("primed follows")
	return nil
}

// followSubject extracts the subject DID from a listRecords record,
// whose value decodes generically; only records that actually decode
// as app.bsky.graph.follow are kept, guarding against a malformed or
// unexpected collection entry the same way the Firehose Subscriber
// guards decoded payloads against their expected NSID.
func followSubject(rec *comatproto.RepoListRecords_Record) (string, bool) {
	if rec == nil || rec.Value == nil || rec.Value.Val == nil {
		return "", false
	}
	follow, ok := rec.Value.Val.(*bsky.GraphFollow)
	if !ok || follow.Subject == "" {
		return "", false
	}
	return follow.Subject, true
}
