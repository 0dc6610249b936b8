// Package bootstrap wires the ambient pieces of a run before provisioning
// starts: logger, configuration and secrets, tracing and the MongoDB
// connection.
//
// Usage:
//
//	logger, sugar, err := bootstrap.InitLogger("info", "console")
//	cfg, err := bootstrap.InitConfig("", sugar)
//	mongoDB, err := bootstrap.ConnectMongo(ctx, cfg, sugar)
//	defer mongoDB.Close(ctx)
package bootstrap
