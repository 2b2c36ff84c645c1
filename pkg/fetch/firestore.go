package fetch

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/illmade-knight/go-ridecache/pkg/types"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreConfig holds configuration for the Firestore client.
type FirestoreConfig struct {
	ProjectID      string
	CollectionName string
}

// FirestoreLocationSource reads the location catalog straight from a
// Firestore collection. It is an alternative to the HTTP API for
// deployments that sit next to the catalog's source of truth.
type FirestoreLocationSource struct {
	client         *firestore.Client
	collectionName string
	logger         zerolog.Logger
}

// NewFirestoreLocationSource creates a new FirestoreLocationSource.
func NewFirestoreLocationSource(
	cfg *FirestoreConfig,
	client *firestore.Client,
	logger zerolog.Logger,
) (*FirestoreLocationSource, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client cannot be nil")
	}
	if cfg.CollectionName == "" {
		return nil, fmt.Errorf("firestore collection name cannot be empty")
	}

	logger.Info().Str("project_id", cfg.ProjectID).Str("collection", cfg.CollectionName).Msg("FirestoreLocationSource initialized.")

	return &FirestoreLocationSource{
		client:         client,
		collectionName: cfg.CollectionName,
		logger:         logger.With().Str("component", "FirestoreLocationSource").Logger(),
	}, nil
}

// Locations returns the active locations of a city ordered by display order.
func (s *FirestoreLocationSource) Locations(ctx context.Context, city string) ([]types.LocationRecord, error) {
	path := s.collectionName + "?city=" + city
	docs, err := s.client.Collection(s.collectionName).
		Where("city", "==", city).
		Where("active", "==", true).
		OrderBy("displayOrder", firestore.Asc).
		Documents(ctx).
		GetAll()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.logger.Error().Err(err).Str("city", city).Msg("Failed to query locations from Firestore.")
		return nil, &RequestError{Method: "QUERY", Path: path, Message: statusMessage(err), Err: err}
	}

	records := make([]types.LocationRecord, 0, len(docs))
	for _, doc := range docs {
		var rec types.LocationRecord
		if err := doc.DataTo(&rec); err != nil {
			s.logger.Error().Err(err).Str("doc_id", doc.Ref.ID).Msg("Failed to map Firestore document data.")
			return nil, &RequestError{Method: "QUERY", Path: path, Message: "unexpected location document", Err: err}
		}
		if rec.ID == "" {
			rec.ID = doc.Ref.ID
		}
		records = append(records, rec)
	}

	s.logger.Debug().Str("city", city).Int("count", len(records)).Msg("Fetched locations from Firestore.")
	return records, nil
}

// Close is a no-op as the Firestore client's lifecycle is managed externally.
func (s *FirestoreLocationSource) Close() error {
	s.logger.Info().Msg("FirestoreLocationSource does not close the injected Firestore client.")
	return nil
}

func statusMessage(err error) string {
	switch status.Code(err) {
	case codes.NotFound:
		return "location catalog not found"
	case codes.PermissionDenied, codes.Unauthenticated:
		return "not allowed to read the location catalog"
	case codes.Unavailable, codes.DeadlineExceeded:
		return "the location catalog is temporarily unavailable"
	default:
		return "could not load locations"
	}
}
