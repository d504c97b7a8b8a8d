package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedis_Ping(t *testing.T) {
	client, mock := redismock.NewClientMock()
	r := &Redis{Client: client}

	mock.ExpectPing().SetVal("PONG")
	require.NoError(t, r.Ping(context.Background()))

	mock.ExpectPing().SetErr(errors.New("LOADING"))
	assert.Error(t, r.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())

	var missing *Redis
	assert.Error(t, missing.Ping(context.Background()))
	assert.NotPanics(t, missing.Close)
}
