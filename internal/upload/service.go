package upload

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eirki/trek-api/internal/db"
)

// Service stores rendered artifacts (maps, photos) and hands out the
// public URL they will be served under.
type Service struct {
	db      db.Querier
	baseURL string
}

func NewService(db db.Querier, baseURL string) *Service {
	return &Service{db: db, baseURL: baseURL}
}

func objectKey(trekID, legID string, date time.Time, name string) string {
	return fmt.Sprintf("%s/%s/%s-%s.jpg", trekID, legID, name, date.Format("2006-01-02"))
}

// Upload persists the object and returns its public URL. Re-running a
// day overwrites the previous artifact for the same key.
func (s *Service) Upload(ctx context.Context, data []byte, trekID, legID string, date time.Time, name string) (string, error) {
	key := objectKey(trekID, legID, date, name)
	url := s.baseURL + "/storage/" + key
	_, err := s.db.Exec(ctx, `
		INSERT INTO storage_objects (id, trek_id, leg_id, object_key, url, kind, data)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (object_key) DO UPDATE SET data = EXCLUDED.data
	`, uuid.NewString(), trekID, legID, key, url, name, data)
	if err != nil {
		return "", err
	}
	return url, nil
}

func (s *Service) Fetch(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow(ctx, `
		SELECT data FROM storage_objects WHERE object_key = $1
	`, key).Scan(&data)
	if err != nil {
		return nil, err
	}
	return data, nil
}
