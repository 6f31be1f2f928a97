package store

// Schema bootstraps the feed generator's tables. Posts are range
// partitioned by created_at at hour granularity (spec.md §4.A); the
// parent table itself holds no rows, only its partitions do.
const Schema = `
-- posts: every candidate item the feed can surface. Originals and
-- reposts share this table; repost_uri distinguishes the two.
-- Partitioned by created_at so retention can drop whole hour buckets
-- instead of running row-level DELETEs.
CREATE TABLE IF NOT EXISTS posts (
    uri         TEXT NOT NULL,
    cid_rev     TEXT NOT NULL,
    repost_uri  TEXT,
    created_at  TIMESTAMPTZ NOT NULL,
    author      TEXT NOT NULL,
    PRIMARY KEY (uri, created_at)
) PARTITION BY RANGE (created_at);

CREATE INDEX IF NOT EXISTS idx_posts_uri ON posts(uri);
CREATE INDEX IF NOT EXISTS idx_posts_author ON posts(author);
CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at);

-- follows: follow graph edges, populated from the firehose and from
-- follow-priming backfills.
CREATE TABLE IF NOT EXISTS follows (
    uri      TEXT PRIMARY KEY,
    follower TEXT NOT NULL,
    followee TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_follows_follower ON follows(follower);

-- follows_primed: the set of reader DIDs whose bulk follow backfill has
-- completed. Presence is set-once and never cleared.
CREATE TABLE IF NOT EXISTS follows_primed (
    did TEXT PRIMARY KEY
);

-- check_follows_primed_trigger: organic firehose follow-creates are
-- only worth recording for followers this service already trusts to
-- have a complete follow graph (i.e. active feed readers). A
-- follow-create for a not-yet-primed follower is silently skipped
-- rather than erroring, so it never aborts the writer's tick. The
-- follow primer (SPEC_FULL.md §4.E) disables this trigger around its
-- own bulk backfill insert, since that insert is precisely how a
-- follower becomes trustworthy in the first place.
CREATE OR REPLACE FUNCTION check_follows_primed() RETURNS trigger AS $$
BEGIN
    IF NOT EXISTS (SELECT 1 FROM follows_primed WHERE did = NEW.follower) THEN
        RETURN NULL;
    END IF;
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS check_follows_primed_trigger ON follows;
CREATE TRIGGER check_follows_primed_trigger
    BEFORE INSERT ON follows
    FOR EACH ROW EXECUTE FUNCTION check_follows_primed();
`
