package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"grocery/crawler/internal/crawler"
	"grocery/crawler/internal/domain"
	"grocery/crawler/internal/domain/task"
	"grocery/crawler/internal/queue"
	"grocery/crawler/internal/recovery"
	"grocery/crawler/internal/state"
)

// Crawler is the part of the traversal engine a session drives
type Crawler interface {
	Start(ctx context.Context, seeds []string, maxDepth int) crawler.Stats
	VisitLink(ctx context.Context, link domain.LinkInfo, depth int) crawler.VisitResult
	ResetFailed(url string) bool
	Reset()
	Stats() crawler.Stats
}

// Service runs crawl sessions and keeps failed links for the next run
type Service struct {
	crawler      Crawler
	queue        queue.Queue
	stateManager state.StateManager
	seeds        []string
	maxDepth     int
	retryFailed  bool

	sessionID string
}

func NewService(
	queue queue.Queue,
	stateManager state.StateManager,
	seeds []string,
	maxDepth int,
	retryFailed bool,
) *Service {
	return &Service{
		queue:        queue,
		stateManager: stateManager,
		seeds:        seeds,
		maxDepth:     maxDepth,
		retryFailed:  retryFailed,
	}
}

// SetCrawler attaches the engine. The engine reports failures back to the
// service, so the two are built in two steps.
func (s *Service) SetCrawler(c Crawler) {
	s.crawler = c
}

func (s *Service) SessionID() string {
	return s.sessionID
}

// Run executes one crawl session: the seeds first, then the failed links kept
// from earlier runs when retry is enabled. Links failing in this session are
// only retried by a later run.
func (s *Service) Run(ctx context.Context) (crawler.Stats, error) {
	if s.crawler == nil {
		return crawler.Stats{}, fmt.Errorf("service has no crawler")
	}

	s.sessionID = uuid.NewString()
	s.crawler.Reset()

	log.Infof("🚀 Crawl session %s started with %d seeds", s.sessionID, len(s.seeds))

	s.crawler.Start(ctx, s.seeds, s.maxDepth)

	if s.retryFailed && ctx.Err() == nil {
		if err := s.RetryFailed(ctx); err != nil {
			log.Errorf("❌ Failed to retry failed links: %v", err)
		}
	}

	stats := s.crawler.Stats()
	s.logStats(stats)

	if err := s.stateManager.SaveSessionStats(ctx, s.sessionID, stats); err != nil {
		log.Errorf("❌ Failed to save session stats: %v", err)
	}

	return stats, ctx.Err()
}

// LinkFailed implements crawler.FailureSink by publishing the link to the
// failed link stream
func (s *Service) LinkFailed(ctx context.Context, link domain.LinkInfo, depth int, err error) {
	failed := task.NewFailedLinkTask(link, depth, recovery.CategoryOf(err).String(), err, s.sessionID)

	if _, addErr := s.queue.AddTask(ctx, failed); addErr != nil {
		log.Errorf("❌ Failed to publish failed link %s: %v", link.URL, addErr)
		return
	}
	log.Debugf("📮 Published failed link %s", link.URL)
}

// RetryFailed drains the failed link stream and visits every link published by
// an earlier session once more. Links that fail again are published anew and
// wait for the next run.
func (s *Service) RetryFailed(ctx context.Context) error {
	stream := s.queue.StreamName((&task.FailedLinkTask{}).TaskType())
	if backlog, err := s.queue.Backlog(ctx, stream); err == nil && backlog > 0 {
		log.Infof("📬 %d failed links waiting in %s", backlog, stream)
	}

	tasks, err := s.drainFailed(ctx)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return nil
	}

	log.Infof("🔄 Retrying %d failed links", len(tasks))

	recovered := 0
	for _, t := range tasks {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.crawler.ResetFailed(t.URL)
		result := s.crawler.VisitLink(ctx, t.Link(), t.Depth)
		if result.Outcome == crawler.OutcomeVisited {
			recovered++
		}
	}

	log.Infof("✅ Recovered %d of %d failed links", recovered, len(tasks))
	return nil
}

// drainFailed reads and acknowledges the failed links of earlier sessions.
// Messages left unacknowledged by an earlier run are claimed first.
func (s *Service) drainFailed(ctx context.Context) ([]*task.FailedLinkTask, error) {
	stream := s.queue.StreamName((&task.FailedLinkTask{}).TaskType())
	group := s.queue.GroupName()
	consumer := "session-" + s.sessionID

	claimed, err := s.queue.AutoClaim(ctx, group, consumer, stream, 0)
	if err != nil {
		return nil, err
	}

	var tasks []*task.FailedLinkTask
	seen := make(map[string]struct{})

	kept := 0
	collect := func(msg *redis.XMessage) {
		t, err := decodeFailedLink(msg)
		switch {
		case err != nil:
			log.Warnf("⚠️ Dropping message %s: %v", msg.ID, err)
		case t.SessionID == s.sessionID:
			// failed in this session: left pending for the next run to claim
			kept++
			return
		default:
			if _, dup := seen[t.URL]; !dup {
				seen[t.URL] = struct{}{}
				tasks = append(tasks, t)
			}
		}
		if err := s.queue.AckTask(ctx, stream, group, msg.ID); err != nil {
			log.Errorf("❌ Failed to ack message %s: %v", msg.ID, err)
		}
	}

	for i := range claimed {
		collect(&claimed[i])
	}

	for {
		msg, err := s.queue.GetTask(ctx, group, consumer, stream, queue.NoBlock)
		if err != nil {
			return tasks, err
		}
		if msg == nil {
			break
		}
		collect(msg)
	}

	if kept > 0 {
		log.Infof("📮 Keeping %d links that failed in this session for the next run", kept)
	}

	// shallow links first, they lead to the deeper ones
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Depth < tasks[j].Depth })
	return tasks, nil
}

func decodeFailedLink(msg *redis.XMessage) (*task.FailedLinkTask, error) {
	t, err := queue.Decode[task.FailedLinkTask](msg)
	if err != nil {
		return nil, err
	}
	if t.URL == "" {
		return nil, fmt.Errorf("message %s has no url", msg.ID)
	}
	return t, nil
}

func (s *Service) logStats(stats crawler.Stats) {
	log.Info("📊 Crawl session finished")
	log.Infof("   Discovered: %d, processed: %d, failed: %d, success rate: %.1f%%",
		stats.Discovered, stats.Processed, stats.Failed, stats.SuccessRate)
	log.Infof("   Categories created: %d, products saved: %d", stats.CategoriesCreated, stats.Products)
	if stats.BacktrackFailures > 0 {
		log.Warnf("   Back-navigation failures: %d", stats.BacktrackFailures)
	}
	for reason, n := range stats.Skips {
		log.Infof("   Skipped (%s): %d", reason, n)
	}

	health := stats.Recovery
	if health.Healthy {
		log.Infof("💚 Recovery healthy: %.1f%% of %d operations succeeded", health.SuccessRate, health.Operations)
	} else {
		log.Warnf("💔 Recovery unhealthy: %.1f%% of %d operations succeeded, open breakers: %v",
			health.SuccessRate, health.Operations, health.OpenBreakers)
	}
	for _, top := range health.Patterns.TopErrors {
		log.Infof("   %s: %d", top.Key, top.Count)
	}
}
