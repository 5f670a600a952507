// Package database journals protocol outcomes to MongoDB, or to memory when
// no database is configured.
package database

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	mevent "go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	c "github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/config"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/logger"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/utils"
)

var ErrDisabled = errors.New("database: disabled in configuration")

// clientOptions translates the database section into driver options.
func clientOptions(config c.DatabaseConfig, appName string) *options.ClientOptions {
	databaseUrl := fmt.Sprintf("mongodb://%s:%d/", config.Host, config.Port)
	if config.Username != "" {
		// 编码特殊字符
		databaseUrl = fmt.Sprintf("mongodb://%s:%s@%s:%d/?authSource=admin",
			url.QueryEscape(config.Username), url.QueryEscape(config.Password),
			config.Host,
			config.Port,
		)
	}

	clientOptions := options.Client().ApplyURI(databaseUrl).SetAppName(appName)
	// 连接池配置
	clientOptions.SetMinPoolSize(config.MinPoolSize)
	clientOptions.SetMaxPoolSize(config.MaxPoolSize)
	clientOptions.SetMaxConnIdleTime(utils.MustParseDuration(config.ConnectIdleTimeout, 5*time.Minute))
	// 超时限制
	clientOptions.SetConnectTimeout(utils.MustParseDuration(config.ConnectTimeout, 10*time.Second))
	clientOptions.SetSocketTimeout(utils.MustParseDuration(config.SocketTimeout, 10*time.Second))
	// 心跳包
	clientOptions.SetHeartbeatInterval(utils.MustParseDuration(config.Heartbeat, 10*time.Second))
	if config.UseTLS {
		clientOptions.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	// 连接池监控
	clientOptions.SetPoolMonitor(&mevent.PoolMonitor{
		Event: func(evt *mevent.PoolEvent) {
			switch evt.Type {
			case mevent.ConnectionCreated:
				logger.DebugF("Database connection created: %s #%d", evt.Address, evt.ConnectionID)
			case mevent.ConnectionClosed:
				logger.DebugF("Database connection closed: %s #%d (%s)", evt.Address, evt.ConnectionID, evt.Reason)
			}
		},
	})
	return clientOptions
}

// ConnectDatabase connects to MongoDB, ensures the outcome indexes and
// returns a running EventStore. The store owns the client and disconnects
// it when invoked as a shutdown hook.
func ConnectDatabase(config c.DatabaseConfig, appName string) (*EventStore, error) {
	if !config.Enabled {
		return nil, ErrDisabled
	}
	logger.DebugF("Connecting to database %s:%d", config.Host, config.Port)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions(config, appName))
	if err != nil {
		return nil, fmt.Errorf("error occured while connecting to database: %w", err)
	}
	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("error occured while pinging database: %w", err)
	}

	outcomes := client.Database(config.Database).Collection(OutcomeCollectionName)
	_, err = outcomes.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "time", Value: -1}},
			Options: options.Index().SetName("outcomes_time"),
		},
		{
			Keys:    bson.D{{Key: "kind", Value: 1}, {Key: "time", Value: -1}},
			Options: options.Index().SetName("outcomes_kind_time"),
		},
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}},
			Options: options.Index().SetName("outcomes_session").SetSparse(true),
		},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("error occured while creating database indexes: %w", err)
	}

	opTimeout := utils.MustParseDuration(config.OperationTimeout, 5*time.Second)
	store := newEventStore(outcomes, config.QueueSize, opTimeout, func(ctx context.Context) error {
		logger.Info("Closing database connection")
		return client.Disconnect(ctx)
	})
	logger.InfoF("Outcome journal connected to %s:%d/%s", config.Host, config.Port, config.Database)
	return store, nil
}
