package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/quake-catalog-crawler/internal/quake"
)

func TestPublishDeliversShardNotification(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, "quake-test", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = client.CreateTopic(ctx, "shards")
	require.NoError(t, err)

	pub := New(client)
	t.Cleanup(pub.Close)

	evt := quake.ShardWritten{
		RunID:     "run-1",
		Period:    "2018_03",
		Shard:     "raw_eq_data_2018_03.csv",
		URI:       "gs://bucket/raw_eq_data_2018_03.csv",
		Records:   4,
		WrittenAt: time.Date(2018, 4, 1, 0, 0, 0, 0, time.UTC),
	}
	id, err := pub.Publish(ctx, "shards", evt)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "2018_03", msgs[0].Attributes["period"])
	require.Equal(t, "raw_eq_data_2018_03.csv", msgs[0].Attributes["shard"])

	var got quake.ShardWritten
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	require.Equal(t, evt, got)
}

func TestPublishValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Publish(context.Background(), "shards", "x")
	require.ErrorContains(t, err, "not configured")
}
