// Package semantic owns all Qdrant operations: collection setup, chunk
// upserts from the ingestion pipeline, and similarity search for retrieval.
package semantic

import (
	"context"
	"fmt"

	"github.com/DeskmateAI/deskmate-mvp/engine/domain"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// VectorStore is a thin adapter over a Qdrant collection.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
}

// New connects to Qdrant at the given gRPC address.
func New(addr string, collection string) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &VectorStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// Close closes the underlying gRPC connection.
func (v *VectorStore) Close() error {
	return v.conn.Close()
}

// EnsureCollection creates the collection with cosine distance if it does
// not exist yet.
func (v *VectorStore) EnsureCollection(ctx context.Context, dims int) error {
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return domain.NewStoreError("list collections", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == v.collection {
			return nil
		}
	}

	d := uint64(dims)
	_, err = v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: v.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     d,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return domain.NewStoreError("create collection", err)
	}
	return nil
}

// Upsert appends records in one call. The ingestion pipeline relies on this
// being a single submission per document.
func (v *VectorStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: r.ID},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Embedding},
				},
			},
			Payload: toPayload(r.Payload),
		}
	}

	wait := true
	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return domain.NewStoreError(fmt.Sprintf("upsert %d points", len(records)), err)
	}
	return nil
}

// Count returns the exact number of records in the collection. Zero is the
// sentinel for "nothing ingested yet" and drives the RAG/direct decision.
func (v *VectorStore) Count(ctx context.Context) (uint64, error) {
	exact := true
	resp, err := v.points.Count(ctx, &pb.CountPoints{
		CollectionName: v.collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, domain.NewStoreError("count", err)
	}
	return resp.GetResult().GetCount(), nil
}

// Search performs k-NN similarity search, nearest first. An empty collection
// yields an empty result without error.
func (v *VectorStore) Search(ctx context.Context, embedding []float32, topK int) ([]SearchResult, error) {
	resp, err := v.points.Search(ctx, &pb.SearchPoints{
		CollectionName: v.collection,
		Vector:         embedding,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, domain.NewStoreError("search", err)
	}

	results := make([]SearchResult, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		sr := SearchResult{
			ID:    r.GetId().GetUuid(),
			Score: r.GetScore(),
		}
		for k, val := range r.GetPayload() {
			switch k {
			case "content":
				sr.Content = val.GetStringValue()
			case "doc_id":
				sr.DocID = val.GetStringValue()
			case "filename":
				sr.Filename = val.GetStringValue()
			case "chunk_index":
				sr.ChunkIndex = val.GetIntegerValue()
			}
		}
		results[i] = sr
	}
	return results, nil
}

// toPayload converts a generic payload map to Qdrant values.
func toPayload(m map[string]any) map[string]*pb.Value {
	payload := make(map[string]*pb.Value, len(m))
	for k, val := range m {
		switch tv := val.(type) {
		case string:
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
		case int:
			payload[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
		case int64:
			payload[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
		case float64:
			payload[k] = &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
		case bool:
			payload[k] = &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
		default:
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
		}
	}
	return payload
}
