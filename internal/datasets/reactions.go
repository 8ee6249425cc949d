package datasets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/driftweb/crawlindex/internal/archive"
	"github.com/driftweb/crawlindex/internal/crawlerr"
	"github.com/driftweb/crawlindex/internal/events"
	"github.com/driftweb/crawlindex/internal/ingest"
	"github.com/driftweb/crawlindex/internal/models"
	"github.com/driftweb/crawlindex/internal/store/sqlite"
)

const reactionsSchemaVersion = 1

var reactionsPathRegex = regexp.MustCompile(`^/data/reactions/[^/]+\.json$`)

// ReactionStore is the narrow store surface the reactions ingester and
// writer need.
type ReactionStore interface {
	ingest.Checkpointer
	UpsertReaction(ctx context.Context, sourceID int64, pathname, topic, emojis string, crawledAt int64) error
	DeleteRecord(ctx context.Context, table string, sourceID int64, pathname string) (bool, error)
	ListReactionsByTopic(ctx context.Context, topic string) ([]sqlite.ReactionRow, error)
	ResetDataset(ctx context.Context, table string, sourceID int64) error
}

// ReactionsIngester implements spec.md §4.3.4's read side: each file is
// `{topic, emojis[]}`, topic normalized, emoji list flattened to a
// comma-joined column.
type ReactionsIngester struct {
	bus    *events.Bus
	store  ReactionStore
	logger arbor.ILogger
}

// NewReactionsIngester constructs the reactions dataset ingester.
func NewReactionsIngester(bus *events.Bus, store ReactionStore, logger arbor.ILogger) *ReactionsIngester {
	return &ReactionsIngester{bus: bus, store: store, logger: logger}
}

func (r *ReactionsIngester) Tag() string { return "reactions" }

func (r *ReactionsIngester) Crawl(ctx context.Context, ah archive.Handle, cs *models.CrawlSource) error {
	return ingest.DoCrawl(ctx, r.bus, r.store, ah, cs, r.Tag(), reactionsSchemaVersion,
		func(ctx context.Context, changes []archive.DiffEntry, win ingest.Window) error {
			return r.handle(ctx, ah, cs, changes, win)
		})
}

func (r *ReactionsIngester) handle(ctx context.Context, ah archive.Handle, cs *models.CrawlSource, changes []archive.DiffEntry, win ingest.Window) error {
	if win.ResetRequired {
		if err := r.store.ResetDataset(ctx, "reactions", cs.ID); err != nil {
			return err
		}
	}

	matching := ingest.GetMatchingChangesInOrder(changes, reactionsPathRegex)
	for i, change := range matching {
		if change.Type == archive.DiffDel {
			if existed, err := r.store.DeleteRecord(ctx, "reactions", cs.ID, change.Name); err != nil {
				return err
			} else if existed {
				r.bus.Publish(events.Event{Kind: events.KindRecordRemoved, SourceURL: cs.Origin, Dataset: r.Tag(), Pathname: change.Name})
			}
		} else {
			if err := r.applyPut(ctx, ah, cs, change.Name); err != nil {
				if errors.Is(err, crawlerr.ArchiveUnreadable) {
					return err
				}
				r.logger.Warn().Err(err).Str("path", change.Name).Msg("skipping invalid reaction file")
			}
		}

		if err := ingest.DoCheckpoint(ctx, r.store, cs.ID, r.Tag(), reactionsSchemaVersion, ingest.VersionOrFallback(change, win.End-1)); err != nil {
			return err
		}
		ingest.EmitProgressEvent(r.bus, cs.Origin, r.Tag(), i+1, len(matching))
	}
	return nil
}

func (r *ReactionsIngester) applyPut(ctx context.Context, ah archive.Handle, cs *models.CrawlSource, pathname string) error {
	data, err := ah.ReadFile(ctx, pathname)
	if err != nil {
		return crawlerr.Wrap(crawlerr.KindArchiveUnreadable, err, "read %s", pathname)
	}

	var payload models.Reaction
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return crawlerr.Wrap(crawlerr.KindValidationFailed, err, "decode %s", pathname)
	}
	if err := models.Validator().Struct(payload); err != nil {
		return crawlerr.Wrap(crawlerr.KindValidationFailed, err, "validate %s", pathname)
	}

	topic := NormalizeTopic(payload.Topic)
	return r.store.UpsertReaction(ctx, cs.ID, pathname, topic, strings.Join(payload.Emojis, ","), time.Now().UnixMilli())
}

// NormalizeTopic normalizes a reaction topic URL: protocol + host + path +
// search + hash, stripping a trailing slash (spec.md §4.3.4).
func NormalizeTopic(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	out := strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + u.Path
	if u.RawQuery != "" {
		out += "?" + u.RawQuery
	}
	if u.Fragment != "" {
		out += "#" + u.Fragment
	}
	return strings.TrimSuffix(out, "/")
}

// ReactionGroup is one emoji's author list, as returned by ListReactions.
type ReactionGroup struct {
	Emoji   string
	Authors []string
}

// ListReactions groups every source's reaction row for topic by emoji,
// producing the shape the Search surface serves directly (spec.md
// §4.3.4's `listReactions(topic)`).
func ListReactions(ctx context.Context, store ReactionStore, topic string) ([]ReactionGroup, error) {
	rows, err := store.ListReactionsByTopic(ctx, NormalizeTopic(topic))
	if err != nil {
		return nil, err
	}

	byEmoji := make(map[string][]string)
	for _, row := range rows {
		for _, emoji := range strings.Split(row.Emojis, ",") {
			if emoji == "" {
				continue
			}
			byEmoji[emoji] = append(byEmoji[emoji], row.Origin)
		}
	}

	emojis := make([]string, 0, len(byEmoji))
	for e := range byEmoji {
		emojis = append(emojis, e)
	}
	sort.Strings(emojis)

	out := make([]ReactionGroup, 0, len(emojis))
	for _, e := range emojis {
		out = append(out, ReactionGroup{Emoji: e, Authors: byEmoji[e]})
	}
	return out, nil
}

func reactionLockName(archiveURL string) string {
	return fmt.Sprintf("crawler:reactions:%s", archiveURL)
}

// reactionFilePath derives the canonical per-topic reaction path (spec.md
// §6.3: "/data/reactions/<slugified-topic-url>.json"). Slugify drops the
// scheme and maps several characters to "-", so distinct topics (for
// example "hyper://a/b" and "https://a/b") can share one path.
func reactionFilePath(topic string) string {
	return fmt.Sprintf("/data/reactions/%s.json", Slugify(topic))
}

// AddReaction performs the read-modify-write described in spec.md §4.3.4:
// under the per-archive reactions lock, read the existing file (if any),
// add emoji to the set, and write it back.
func AddReaction(ctx context.Context, locker NamedLocker, ah ArchiveWriter, archiveURL, topic, emoji string) error {
	release, err := locker.Lock(ctx, reactionLockName(archiveURL))
	if err != nil {
		return err
	}
	defer release()

	path := reactionFilePath(topic)
	emojis, err := readReactionEmojis(ctx, ah, path)
	if err != nil {
		return err
	}

	if !contains(emojis, emoji) {
		emojis = append(emojis, emoji)
	}
	return writeReactionFile(ctx, ah, path, topic, emojis)
}

// RemoveReaction mirrors AddReaction, deleting the file entirely once the
// resulting emoji set is empty.
func RemoveReaction(ctx context.Context, locker NamedLocker, ah ArchiveWriter, archiveURL, topic, emoji string) error {
	release, err := locker.Lock(ctx, reactionLockName(archiveURL))
	if err != nil {
		return err
	}
	defer release()

	path := reactionFilePath(topic)
	emojis, err := readReactionEmojis(ctx, ah, path)
	if err != nil {
		return err
	}

	emojis = remove(emojis, emoji)
	if len(emojis) == 0 {
		if err := ah.Unlink(ctx, path); err != nil {
			if errors.Is(err, crawlerr.NotFound) {
				return nil
			}
			return err
		}
		return nil
	}
	return writeReactionFile(ctx, ah, path, topic, emojis)
}

func readReactionEmojis(ctx context.Context, ah ArchiveWriter, path string) ([]string, error) {
	data, err := ah.ReadFile(ctx, path)
	if err != nil {
		if errors.Is(err, crawlerr.NotFound) || errors.Is(err, crawlerr.ArchiveUnreadable) {
			return nil, nil
		}
		return nil, err
	}
	var payload models.Reaction
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return nil, nil
	}
	return payload.Emojis, nil
}

func writeReactionFile(ctx context.Context, ah ArchiveWriter, path, topic string, emojis []string) error {
	payload := models.Reaction{Type: "unwalled.garden/reactions", Topic: topic, Emojis: emojis}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return ah.WriteFile(ctx, path, data)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func remove(list []string, v string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}

var _ Ingester = (*ReactionsIngester)(nil)
