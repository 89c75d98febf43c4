package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"postflow/internal/models"
)

// SavePersona inserts a persona record and returns its id. The persona is
// committed on its own so a later post-write failure leaves it retrievable.
func (s *Store) SavePersona(ctx context.Context, p *models.Persona) (int64, error) {
	if p == nil {
		return 0, errors.New("persona is required")
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO personas (user_id, profession, current_work, goal, industry_target, target_type,
		 writing_samples, post_count, purpose, timeline_days, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.UserID, p.Profession, p.CurrentWork, p.Goal, p.IndustryTarget, p.TargetType,
		p.WritingSamples, p.PostCount, p.Purpose, p.TimelineDays, now,
	)
	if err != nil {
		return 0, fmt.Errorf("save persona: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("persona id: %w", err)
	}
	p.ID = id
	p.CreatedAt = now
	return id, nil
}

// SavePosts writes the complete validated post set in one transaction.
// Partial sets are never persisted.
func (s *Store) SavePosts(ctx context.Context, personaID int64, posts []models.Post) error {
	if personaID <= 0 {
		return errors.New("invalid persona id")
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for i := range posts {
		var res sql.Result
		res, err = tx.ExecContext(ctx,
			`INSERT INTO posts (persona_id, content, scheduled_date, clicks, regenerate_clicks, created_at)
			 VALUES (?, ?, ?, 0, 0, ?)`,
			personaID, posts[i].Content, posts[i].ScheduledDate, now,
		)
		if err != nil {
			err = fmt.Errorf("save post: %w", err)
			return err
		}
		id, idErr := res.LastInsertId()
		if idErr != nil {
			err = fmt.Errorf("post id: %w", idErr)
			return err
		}
		posts[i].ID = id
		posts[i].PersonaID = personaID
		posts[i].CreatedAt = now
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit posts: %w", err)
	}
	return nil
}

// LatestPersona returns the newest persona for the user, sql.ErrNoRows when
// the intake has never completed.
func (s *Store) LatestPersona(ctx context.Context, userID int64) (*models.Persona, error) {
	var p models.Persona
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, profession, current_work, goal, industry_target, target_type,
		 writing_samples, post_count, purpose, timeline_days, created_at
		 FROM personas WHERE user_id = ? ORDER BY id DESC LIMIT 1`, userID,
	).Scan(&p.ID, &p.UserID, &p.Profession, &p.CurrentWork, &p.Goal, &p.IndustryTarget, &p.TargetType,
		&p.WritingSamples, &p.PostCount, &p.Purpose, &p.TimelineDays, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("latest persona: %w", err)
	}
	return &p, nil
}

// PersonaByID fetches one persona, verifying it belongs to the given user.
func (s *Store) PersonaByID(ctx context.Context, userID, personaID int64) (*models.Persona, error) {
	var p models.Persona
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, profession, current_work, goal, industry_target, target_type,
		 writing_samples, post_count, purpose, timeline_days, created_at
		 FROM personas WHERE id = ? AND user_id = ?`, personaID, userID,
	).Scan(&p.ID, &p.UserID, &p.Profession, &p.CurrentWork, &p.Goal, &p.IndustryTarget, &p.TargetType,
		&p.WritingSamples, &p.PostCount, &p.Purpose, &p.TimelineDays, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get persona: %w", err)
	}
	return &p, nil
}

// PostsByPersona lists a persona's posts in schedule order.
func (s *Store) PostsByPersona(ctx context.Context, personaID int64) ([]models.Post, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, persona_id, content, scheduled_date, clicks, regenerate_clicks, created_at
		 FROM posts WHERE persona_id = ? ORDER BY scheduled_date ASC, id ASC`, personaID,
	)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var posts []models.Post
	for rows.Next() {
		var p models.Post
		if err := rows.Scan(&p.ID, &p.PersonaID, &p.Content, &p.ScheduledDate, &p.Clicks, &p.RegenerateClicks, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// GetPost fetches one post, verifying it belongs to the given user.
func (s *Store) GetPost(ctx context.Context, userID, postID int64) (*models.Post, error) {
	var p models.Post
	err := s.db.QueryRowContext(ctx,
		`SELECT p.id, p.persona_id, p.content, p.scheduled_date, p.clicks, p.regenerate_clicks, p.created_at
		 FROM posts p JOIN personas pe ON pe.id = p.persona_id
		 WHERE p.id = ? AND pe.user_id = ?`, postID, userID,
	).Scan(&p.ID, &p.PersonaID, &p.Content, &p.ScheduledDate, &p.Clicks, &p.RegenerateClicks, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get post: %w", err)
	}
	return &p, nil
}

// ReplacePostContent swaps a single post's content in place, leaving its
// schedule date and siblings untouched, and bumps the regenerate counter.
func (s *Store) ReplacePostContent(ctx context.Context, postID int64, content string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE posts SET content = ?, regenerate_clicks = regenerate_clicks + 1 WHERE id = ?`,
		content, postID,
	)
	if err != nil {
		return fmt.Errorf("replace post content: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("post rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RecordPostClick increments a post's click counter.
func (s *Store) RecordPostClick(ctx context.Context, postID int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE posts SET clicks = clicks + 1 WHERE id = ?`, postID)
	if err != nil {
		return fmt.Errorf("record click: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("post rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
