package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"surfsense/pkg/domain"
)

const migrateLockID int64 = 51731573

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("database dsn required")
	}
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	s := &GormStore{db: db}
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Migrate creates or updates tables under a Postgres advisory lock so that
// concurrent replicas do not race on DDL.
func (s *GormStore) Migrate() error {
	return withMigrationLock(s.db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &SearchSpaceModel{}, &ChatModel{}, &DocumentModel{}, &PodcastModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(`
			DO $$
			BEGIN
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'search_space_models'
					AND constraint_name = 'search_space_models_user_id_fkey'
				) THEN
					ALTER TABLE search_space_models
					ADD CONSTRAINT search_space_models_user_id_fkey
					FOREIGN KEY (user_id) REFERENCES user_models(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'chat_models'
					AND constraint_name = 'chat_models_search_space_id_fkey'
				) THEN
					ALTER TABLE chat_models
					ADD CONSTRAINT chat_models_search_space_id_fkey
					FOREIGN KEY (search_space_id) REFERENCES search_space_models(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'document_models'
					AND constraint_name = 'document_models_search_space_id_fkey'
				) THEN
					ALTER TABLE document_models
					ADD CONSTRAINT document_models_search_space_id_fkey
					FOREIGN KEY (search_space_id) REFERENCES search_space_models(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'podcast_models'
					AND constraint_name = 'podcast_models_search_space_id_fkey'
				) THEN
					ALTER TABLE podcast_models
					ADD CONSTRAINT podcast_models_search_space_id_fkey
					FOREIGN KEY (search_space_id) REFERENCES search_space_models(id) ON DELETE CASCADE;
				END IF;
			END $$;
		`).Error; err != nil {
			return fmt.Errorf("ensure search space foreign keys: %w", err)
		}
		return nil
	})
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// CreateUser inserts a user; username and email must be unused.
func (s *GormStore) CreateUser(u domain.User) (domain.User, error) {
	model := userToModel(u)
	model.ID = 0
	res := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&model)
	if res.Error != nil {
		return domain.User{}, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.User{}, ErrConflict
	}
	return userFromModel(model), nil
}

// GetUserByUsername looks up a user by username.
func (s *GormStore) GetUserByUsername(username string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("username = ?", username).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id int64) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// CreateSearchSpace inserts a search space.
func (s *GormStore) CreateSearchSpace(space domain.SearchSpace) (domain.SearchSpace, error) {
	model := searchSpaceToModel(space)
	model.ID = 0
	if err := s.db.Create(&model).Error; err != nil {
		return domain.SearchSpace{}, err
	}
	return searchSpaceFromModel(model), nil
}

// GetSearchSpace returns a search space by ID.
func (s *GormStore) GetSearchSpace(id int64) (domain.SearchSpace, bool, error) {
	var model SearchSpaceModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.SearchSpace{}, false, nil
		}
		return domain.SearchSpace{}, false, err
	}
	return searchSpaceFromModel(model), true, nil
}

// ListSearchSpacesByUser returns the user's search spaces ordered by id.
func (s *GormStore) ListSearchSpacesByUser(userID int64) ([]domain.SearchSpace, error) {
	var models []SearchSpaceModel
	if err := s.db.Where("user_id = ?", userID).Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.SearchSpace, 0, len(models))
	for _, m := range models {
		res = append(res, searchSpaceFromModel(m))
	}
	return res, nil
}

// DeleteSearchSpace removes a search space and everything it contains.
func (s *GormStore) DeleteSearchSpace(id int64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&ChatModel{}, "search_space_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&DocumentModel{}, "search_space_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&PodcastModel{}, "search_space_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&SearchSpaceModel{}, "id = ?", id).Error
	})
}

// CreateChat inserts a chat.
func (s *GormStore) CreateChat(c domain.Chat) (domain.Chat, error) {
	model := chatToModel(c)
	model.ID = 0
	if err := s.db.Create(&model).Error; err != nil {
		return domain.Chat{}, err
	}
	return chatFromModel(model), nil
}

// GetChat returns a chat by ID.
func (s *GormStore) GetChat(id int64) (domain.Chat, bool, error) {
	var model ChatModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Chat{}, false, nil
		}
		return domain.Chat{}, false, err
	}
	return chatFromModel(model), true, nil
}

// ListChatsBySearchSpace returns chats of a search space, oldest first.
func (s *GormStore) ListChatsBySearchSpace(searchSpaceID int64) ([]domain.Chat, error) {
	var models []ChatModel
	if err := s.db.Where("search_space_id = ?", searchSpaceID).Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Chat, 0, len(models))
	for _, m := range models {
		res = append(res, chatFromModel(m))
	}
	return res, nil
}

// UpdateChatList replaces the stored message list.
func (s *GormStore) UpdateChatList(id int64, chatsList json.RawMessage) error {
	return s.db.Model(&ChatModel{}).
		Where("id = ?", id).
		Update("chats_list", datatypes.JSON(normalizeList(chatsList))).Error
}

// DeleteChat removes a chat.
func (s *GormStore) DeleteChat(id int64) error {
	return s.db.Delete(&ChatModel{}, "id = ?", id).Error
}

// CreateDocuments inserts documents in one batch and returns them with ids.
func (s *GormStore) CreateDocuments(docs []domain.Document) ([]domain.Document, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	models := make([]DocumentModel, 0, len(docs))
	for _, d := range docs {
		m := documentToModel(d)
		m.ID = 0
		models = append(models, m)
	}
	if err := s.db.Create(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Document, 0, len(models))
	for _, m := range models {
		res = append(res, documentFromModel(m))
	}
	return res, nil
}

// ListDocumentsBySearchSpace returns documents of a search space, oldest first.
func (s *GormStore) ListDocumentsBySearchSpace(searchSpaceID int64) ([]domain.Document, error) {
	var models []DocumentModel
	if err := s.db.Where("search_space_id = ?", searchSpaceID).Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Document, 0, len(models))
	for _, m := range models {
		res = append(res, documentFromModel(m))
	}
	return res, nil
}

// DeleteDocuments removes the listed documents scoped to a search space.
func (s *GormStore) DeleteDocuments(searchSpaceID int64, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.db.Where("search_space_id = ? AND id IN ?", searchSpaceID, ids).Delete(&DocumentModel{})
	return res.RowsAffected, res.Error
}

// CreatePodcast inserts a podcast.
func (s *GormStore) CreatePodcast(p domain.Podcast) (domain.Podcast, error) {
	model := podcastToModel(p)
	model.ID = 0
	if err := s.db.Create(&model).Error; err != nil {
		return domain.Podcast{}, err
	}
	return podcastFromModel(model), nil
}

// GetPodcast returns a podcast by ID.
func (s *GormStore) GetPodcast(id int64) (domain.Podcast, bool, error) {
	var model PodcastModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Podcast{}, false, nil
		}
		return domain.Podcast{}, false, err
	}
	return podcastFromModel(model), true, nil
}

// ListPodcastsBySearchSpace returns podcasts of a search space, oldest first.
func (s *GormStore) ListPodcastsBySearchSpace(searchSpaceID int64) ([]domain.Podcast, error) {
	return s.listPodcasts("search_space_id = ?", searchSpaceID)
}

// ListPodcastsByStatus returns podcasts in status last touched before the cutoff.
func (s *GormStore) ListPodcastsByStatus(status domain.PodcastStatus, updatedBefore time.Time) ([]domain.Podcast, error) {
	return s.listPodcasts("status = ? AND updated_at < ?", string(status), updatedBefore.UTC())
}

func (s *GormStore) listPodcasts(query string, args ...any) ([]domain.Podcast, error) {
	var models []PodcastModel
	if err := s.db.Where(query, args...).Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Podcast, 0, len(models))
	for _, m := range models {
		res = append(res, podcastFromModel(m))
	}
	return res, nil
}

// UpdatePodcast applies the non-nil fields of update.
func (s *GormStore) UpdatePodcast(id int64, update domain.PodcastUpdate) (domain.Podcast, bool, error) {
	updates := map[string]any{
		"updated_at": time.Now().UTC(),
	}
	if update.Title != nil {
		updates["title"] = *update.Title
	}
	if update.Content != nil {
		updates["podcast_content"] = *update.Content
	}
	if update.Status != nil {
		updates["status"] = string(*update.Status)
	}
	if update.IsCompleted != nil {
		updates["is_completed"] = *update.IsCompleted
	}
	res := s.db.Model(&PodcastModel{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return domain.Podcast{}, false, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.Podcast{}, false, nil
	}
	return s.GetPodcast(id)
}

// SetPodcastResult records a lifecycle transition.
func (s *GormStore) SetPodcastResult(id int64, status domain.PodcastStatus, fileLocation *string, completed bool) error {
	updates := map[string]any{
		"status":       string(status),
		"is_completed": completed,
		"updated_at":   time.Now().UTC(),
	}
	if fileLocation != nil {
		updates["file_location"] = *fileLocation
	}
	return s.db.Model(&PodcastModel{}).Where("id = ?", id).Updates(updates).Error
}

// DeletePodcast removes a podcast row.
func (s *GormStore) DeletePodcast(id int64) error {
	return s.db.Delete(&PodcastModel{}, "id = ?", id).Error
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
