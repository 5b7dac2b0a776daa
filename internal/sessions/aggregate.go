package sessions

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/strrl/opencode-sessions/internal/dataerr"
	"github.com/strrl/opencode-sessions/internal/logging"
	"github.com/strrl/opencode-sessions/pkg/models"
)

// AcrossOptions filters ListAcrossProjects
type AcrossOptions struct {
	Search string
	Roots  *bool
	// PerProjectLimit caps each per-project listing; 0 uses the default
	PerProjectLimit int
}

// ListAcrossProjects lists sessions from every project with a worktree,
// deduplicated by id and sorted by last update, newest first.
// Projects whose listing fails with a data error are skipped.
func ListAcrossProjects(ctx context.Context, src Source, opts AcrossOptions) ([]models.Session, error) {
	log := logging.NewLogger("sessions")

	limit := opts.PerProjectLimit
	if limit <= 0 {
		limit = models.DefaultSessionListLimit
	}

	projects, err := src.ListProjects(ctx)
	if err != nil {
		return nil, err
	}

	var order []string
	byID := make(map[string]models.Session)
	for _, project := range projects {
		if project.Worktree == "" {
			continue
		}

		list, err := src.ListSessions(ctx, models.ListSessionsOptions{
			Directory: project.Worktree,
			Roots:     opts.Roots,
			Search:    opts.Search,
			Limit:     limit,
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if _, ok := dataerr.As(err); !ok {
				return nil, err
			}
			log.WithError(err).WithFields(logrus.Fields{
				"project":  project.ID,
				"worktree": project.Worktree,
			}).Warn("Skipping project, session listing failed")
			continue
		}

		for _, s := range list {
			if s.ID == "" {
				continue
			}
			if _, seen := byID[s.ID]; !seen {
				order = append(order, s.ID)
			}
			byID[s.ID] = s
		}
	}

	result := make([]models.Session, 0, len(order))
	for _, id := range order {
		result = append(result, byID[id])
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Time.Updated > result[j].Time.Updated
	})

	return result, nil
}
