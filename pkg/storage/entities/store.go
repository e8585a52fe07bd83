package entities

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"achievibit/pkg/model"
	"achievibit/pkg/storage"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// Config mirrors the storage section of the application config.
type Config struct {
	Driver      string
	DSN         string
	Dialect     string
	TablePrefix string
	AutoMigrate bool
	// MaxOpenConns caps the connection pool when positive.
	MaxOpenConns int
}

// Store implements storage.EntityStore on top of GORM.
type Store struct {
	db *gorm.DB
}

var _ storage.EntityStore = (*Store)(nil)

var errNotInitialized = errors.New("store is not initialized")

// Open creates a GORM-backed entity store.
func Open(cfg Config) (*Store, error) {
	if cfg.Driver == "" && cfg.Dialect == "" {
		return nil, errors.New("storage driver or dialect is required")
	}
	if cfg.DSN == "" {
		return nil, errors.New("storage dsn is required")
	}
	driver := normalizeDriver(cfg.Driver)
	if driver == "" {
		driver = normalizeDriver(cfg.Dialect)
	}
	if driver == "" {
		return nil, errors.New("unsupported storage driver")
	}

	prefix := cfg.TablePrefix
	if prefix == "" {
		prefix = "achievibit_"
	}
	gormDB, err := openGorm(driver, cfg.DSN, &gorm.Config{
		NamingStrategy: schema.NamingStrategy{TablePrefix: prefix},
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB, err := gormDB.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	store := &Store{db: gormDB}
	if cfg.AutoMigrate {
		if err := store.migrate(); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// Close closes the underlying DB connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UpsertUser inserts a user or refreshes its profile fields.
func (s *Store) UpsertUser(ctx context.Context, in model.User) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	if in.Username == "" {
		return errors.New("username is required")
	}
	data := toUserRow(in)
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "username"}},
			DoUpdates: clause.AssignmentColumns([]string{"url", "avatar", "organization", "updated_at"}),
		}).
		Create(&data).Error
}

// CreateRepository inserts a repository unless it already exists.
func (s *Store) CreateRepository(ctx context.Context, in model.Repository) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	if in.Fullname == "" {
		return errors.New("repository fullname is required")
	}
	data := toRepositoryRow(in)
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "fullname"}},
			DoNothing: true,
		}).
		Create(&data).Error
}

// CreatePullRequest inserts the scalar fields of a pull request unless it
// already exists. Sets, comments and reviews are written by their own calls.
func (s *Store) CreatePullRequest(ctx context.Context, in model.PullRequest) (bool, error) {
	if s == nil || s.db == nil {
		return false, errNotInitialized
	}
	if in.PRID == "" {
		return false, errors.New("prid is required")
	}
	if !in.Status.Valid() {
		return false, fmt.Errorf("invalid status %q", in.Status)
	}
	data := toPullRequestRow(in)
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "prid"}},
			DoNothing: true,
		}).
		Create(&data)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// PatchPullRequest applies the present fields of patch in one transaction.
// Title and description edits are appended to the edit history once per
// (field, from, to), so redelivering the same patch records nothing new.
func (s *Store) PatchPullRequest(ctx context.Context, prid string, patch model.PullRequestPatch) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	if patch.Empty() {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current pullRequest
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("prid = ?", prid).
			Take(&current).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: pull request %s", storage.ErrNotFound, prid)
		}
		if err != nil {
			return err
		}

		updates := map[string]interface{}{}
		if title, ok := patch.Title.Get(); ok && title != current.Title {
			updates["title"] = title
		}
		if description, ok := patch.Description.Get(); ok && description != current.Description {
			updates["description"] = description
		}
		if next, ok := patch.Status.Get(); ok {
			stored, err := model.ParseStatus(current.Status)
			if err != nil {
				return err
			}
			if !stored.CanTransition(next) {
				return fmt.Errorf("%w: %s -> %s", storage.ErrStatusTransition, stored, next)
			}
			if next != stored {
				updates["status"] = string(next)
			}
		}

		now := time.Now().UTC()
		edits, err := editsFor(tx, prid, current, patch, now)
		if err != nil {
			return err
		}

		if len(updates) > 0 {
			updates["updated_at"] = now
			res := tx.Model(&pullRequest{}).
				Where("prid = ? AND status = ?", prid, current.Status).
				Updates(updates)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("%w: %s changed concurrently", storage.ErrStatusTransition, prid)
			}
		}
		if len(edits) > 0 {
			return tx.Create(&edits).Error
		}
		return nil
	})
}

// AddToSet adds value to a pull request set. Re-adding a removed reviewer
// clears its removed flag. Assignees keep payload order and go through
// ReplaceSet.
func (s *Store) AddToSet(ctx context.Context, prid string, field model.SetField, value string) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	db := s.db.WithContext(ctx)
	switch field {
	case model.SetLabels:
		return db.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&pullRequestLabel{PRID: prid, Name: value}).Error
	case model.SetAssignees:
		return fmt.Errorf("set %q is only replaced as a whole", field)
	case model.SetReviewers:
		return db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "prid"}, {Name: "username"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"removed": false}),
		}).Create(&pullRequestReviewer{PRID: prid, Username: value}).Error
	default:
		return fmt.Errorf("unknown set %q", field)
	}
}

// RemoveFromSet removes value from a pull request set. Reviewers are kept
// and flagged as removed. Removing an absent value is a no-op.
func (s *Store) RemoveFromSet(ctx context.Context, prid string, field model.SetField, value string) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	db := s.db.WithContext(ctx)
	switch field {
	case model.SetLabels:
		return db.Where("prid = ? AND name = ?", prid, value).Delete(&pullRequestLabel{}).Error
	case model.SetAssignees:
		return db.Where("prid = ? AND username = ?", prid, value).Delete(&pullRequestAssignee{}).Error
	case model.SetReviewers:
		return db.Model(&pullRequestReviewer{}).
			Where("prid = ? AND username = ?", prid, value).
			Update("removed", true).Error
	default:
		return fmt.Errorf("unknown set %q", field)
	}
}

// ReplaceSet overwrites a pull request set with values.
func (s *Store) ReplaceSet(ctx context.Context, prid string, field model.SetField, values []string) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	values = dedupe(values)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		switch field {
		case model.SetLabels:
			if err := tx.Where("prid = ?", prid).Delete(&pullRequestLabel{}).Error; err != nil {
				return err
			}
			if len(values) == 0 {
				return nil
			}
			rows := make([]pullRequestLabel, 0, len(values))
			for _, value := range values {
				rows = append(rows, pullRequestLabel{PRID: prid, Name: value})
			}
			return tx.Create(&rows).Error
		case model.SetAssignees:
			if err := tx.Where("prid = ?", prid).Delete(&pullRequestAssignee{}).Error; err != nil {
				return err
			}
			if len(values) == 0 {
				return nil
			}
			rows := make([]pullRequestAssignee, 0, len(values))
			for i, value := range values {
				rows = append(rows, pullRequestAssignee{PRID: prid, Username: value, Position: i})
			}
			return tx.Create(&rows).Error
		case model.SetReviewers:
			if err := tx.Where("prid = ?", prid).Delete(&pullRequestReviewer{}).Error; err != nil {
				return err
			}
			if len(values) == 0 {
				return nil
			}
			rows := make([]pullRequestReviewer, 0, len(values))
			for _, value := range values {
				rows = append(rows, pullRequestReviewer{PRID: prid, Username: value})
			}
			return tx.Create(&rows).Error
		default:
			return fmt.Errorf("unknown set %q", field)
		}
	})
}

// UpsertReviewComment inserts a review comment by id. An existing comment
// is overwritten only by a copy updated no earlier than the stored one, so a
// redelivered creation cannot undo a later edit.
func (s *Store) UpsertReviewComment(ctx context.Context, prid string, in model.ReviewComment) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	data := toCommentRow(prid, in)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&data)
		if res.Error != nil || res.RowsAffected > 0 {
			return res.Error
		}
		return tx.Model(&reviewComment{}).
			Where("prid = ? AND comment_id = ? AND updated_on <= ?", prid, data.CommentID, data.UpdatedOn).
			Updates(map[string]interface{}{
				"review_id":  data.ReviewID,
				"author":     data.Author,
				"message":    data.Message,
				"created_on": data.CreatedOn,
				"updated_on": data.UpdatedOn,
				"edited":     data.Edited,
				"api_url":    data.APIURL,
				"file":       data.File,
				"commit_sha": data.Commit,
			}).Error
	})
}

// RemoveReviewComment deletes a review comment by id.
func (s *Store) RemoveReviewComment(ctx context.Context, prid string, commentID int64) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	return s.db.WithContext(ctx).
		Where("prid = ? AND comment_id = ?", prid, commentID).
		Delete(&reviewComment{}).Error
}

// UpsertReview inserts a review or overwrites it by id.
func (s *Store) UpsertReview(ctx context.Context, prid string, in model.Review) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	data := toReviewRow(prid, in)
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "prid"}, {Name: "review_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"username", "message", "state", "created_on", "commit_sha", "author_association"}),
		}).
		Create(&data).Error
}

// FindPullRequest loads a pull request with its sets, comments, reviews and
// edit history.
func (s *Store) FindPullRequest(ctx context.Context, prid string) (*model.PullRequest, error) {
	if s == nil || s.db == nil {
		return nil, errNotInitialized
	}
	var data pullRequest
	err := s.db.WithContext(ctx).Where("prid = ?", prid).Take(&data).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: pull request %s", storage.ErrNotFound, prid)
	}
	if err != nil {
		return nil, err
	}
	prs, err := s.assemble(ctx, []pullRequest{data})
	if err != nil {
		return nil, err
	}
	return &prs[0], nil
}

// FindUser loads a user by username.
func (s *Store) FindUser(ctx context.Context, username string) (*model.User, error) {
	if s == nil || s.db == nil {
		return nil, errNotInitialized
	}
	var data user
	err := s.db.WithContext(ctx).Where("username = ?", username).Take(&data).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: user %s", storage.ErrNotFound, username)
	}
	if err != nil {
		return nil, err
	}
	out := fromUserRow(data)
	return &out, nil
}

// FindRepository loads a repository by fullname.
func (s *Store) FindRepository(ctx context.Context, fullname string) (*model.Repository, error) {
	if s == nil || s.db == nil {
		return nil, errNotInitialized
	}
	var data repository
	err := s.db.WithContext(ctx).Where("fullname = ?", fullname).Take(&data).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: repository %s", storage.ErrNotFound, fullname)
	}
	if err != nil {
		return nil, err
	}
	out := fromRepositoryRow(data)
	return &out, nil
}

// ListRepositories lists every known repository.
func (s *Store) ListRepositories(ctx context.Context) ([]model.Repository, error) {
	if s == nil || s.db == nil {
		return nil, errNotInitialized
	}
	var data []repository
	if err := s.db.WithContext(ctx).Order("fullname").Find(&data).Error; err != nil {
		return nil, err
	}
	out := make([]model.Repository, 0, len(data))
	for _, item := range data {
		out = append(out, fromRepositoryRow(item))
	}
	return out, nil
}

// ListPullRequests lists the pull requests of a repository, newest first.
func (s *Store) ListPullRequests(ctx context.Context, fullname string) ([]model.PullRequest, error) {
	if s == nil || s.db == nil {
		return nil, errNotInitialized
	}
	var data []pullRequest
	err := s.db.WithContext(ctx).
		Where("repository = ?", fullname).
		Order("number desc").
		Find(&data).Error
	if err != nil {
		return nil, err
	}
	return s.assemble(ctx, data)
}

func (s *Store) assemble(ctx context.Context, rows []pullRequest) ([]model.PullRequest, error) {
	if len(rows) == 0 {
		return []model.PullRequest{}, nil
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.PRID)
	}
	db := s.db.WithContext(ctx)

	var labels []pullRequestLabel
	if err := db.Where("prid IN ?", ids).Order("name").Find(&labels).Error; err != nil {
		return nil, err
	}
	var assignees []pullRequestAssignee
	if err := db.Where("prid IN ?", ids).Order("position").Find(&assignees).Error; err != nil {
		return nil, err
	}
	var reviewers []pullRequestReviewer
	if err := db.Where("prid IN ?", ids).Order("username").Find(&reviewers).Error; err != nil {
		return nil, err
	}
	var comments []reviewComment
	if err := db.Where("prid IN ?", ids).Order("created_on, comment_id").Find(&comments).Error; err != nil {
		return nil, err
	}
	var reviews []review
	if err := db.Where("prid IN ?", ids).Order("created_on, review_id").Find(&reviews).Error; err != nil {
		return nil, err
	}
	var edits []pullRequestEdit
	if err := db.Where("prid IN ?", ids).Order("id").Find(&edits).Error; err != nil {
		return nil, err
	}

	out := make([]model.PullRequest, 0, len(rows))
	index := make(map[string]int, len(rows))
	for _, row := range rows {
		pr, err := fromPullRequestRow(row)
		if err != nil {
			return nil, err
		}
		pr.Labels = []string{}
		pr.Assignees = []string{}
		pr.Reviewers = []model.Reviewer{}
		pr.ReviewComments = []model.ReviewComment{}
		pr.Reviews = []model.Review{}
		pr.Edits = []model.Edit{}
		index[pr.PRID] = len(out)
		out = append(out, pr)
	}
	for _, item := range labels {
		pr := &out[index[item.PRID]]
		pr.Labels = append(pr.Labels, item.Name)
	}
	for _, item := range assignees {
		pr := &out[index[item.PRID]]
		pr.Assignees = append(pr.Assignees, item.Username)
	}
	for _, item := range reviewers {
		pr := &out[index[item.PRID]]
		pr.Reviewers = append(pr.Reviewers, model.Reviewer{Username: item.Username, Removed: item.Removed})
	}
	for _, item := range comments {
		pr := &out[index[item.PRID]]
		pr.ReviewComments = append(pr.ReviewComments, fromCommentRow(item))
	}
	for _, item := range reviews {
		pr := &out[index[item.PRID]]
		pr.Reviews = append(pr.Reviews, fromReviewRow(item))
	}
	for _, item := range edits {
		pr := &out[index[item.PRID]]
		pr.Edits = append(pr.Edits, model.Edit{
			Field:    item.Field,
			From:     item.From,
			To:       item.To,
			EditedOn: item.EditedOn,
		})
	}
	return out, nil
}

func (s *Store) migrate() error {
	return s.db.AutoMigrate(allTables()...)
}

// editsFor builds history rows for title and description. The previous
// value comes from the event's change-set when it names the field, so an
// edit applied to a pull request that was just created from the same event
// is still recorded. Entries already stored are skipped.
func editsFor(tx *gorm.DB, prid string, current pullRequest, patch model.PullRequestPatch, now time.Time) ([]pullRequestEdit, error) {
	next := map[string]string{}
	if title, ok := patch.Title.Get(); ok {
		next[model.FieldTitle] = title
	}
	if description, ok := patch.Description.Get(); ok {
		next[model.FieldDescription] = description
	}
	stored := map[string]string{
		model.FieldTitle:       current.Title,
		model.FieldDescription: current.Description,
	}

	from := map[string]string{}
	for field, value := range next {
		if stored[field] != value {
			from[field] = stored[field]
		}
	}
	for _, change := range patch.Changes {
		if _, ok := next[change.Field]; ok {
			from[change.Field] = change.From
		}
	}

	fields := make([]string, 0, len(from))
	for field := range from {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	edits := make([]pullRequestEdit, 0, len(fields))
	for _, field := range fields {
		if from[field] == next[field] {
			continue
		}
		var count int64
		err := tx.Model(&pullRequestEdit{}).
			Where("prid = ? AND field = ? AND from_value = ? AND to_value = ?", prid, field, from[field], next[field]).
			Count(&count).Error
		if err != nil {
			return nil, err
		}
		if count > 0 {
			continue
		}
		edits = append(edits, pullRequestEdit{
			PRID:     prid,
			Field:    field,
			From:     from[field],
			To:       next[field],
			EditedOn: now,
		})
	}
	return edits, nil
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

func normalizeDriver(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	switch value {
	case "postgres", "postgresql", "pgx":
		return "postgres"
	case "mysql":
		return "mysql"
	case "sqlite", "sqlite3":
		return "sqlite"
	default:
		return ""
	}
}

func openGorm(driver, dsn string, cfg *gorm.Config) (*gorm.DB, error) {
	switch driver {
	case "postgres":
		return gorm.Open(postgres.Open(dsn), cfg)
	case "mysql":
		return gorm.Open(mysql.Open(dsn), cfg)
	case "sqlite":
		return gorm.Open(sqlite.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", driver)
	}
}
