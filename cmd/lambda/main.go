package main

import (
	"context"
	"log"
	"time"

	"github.com/raimediatech/kingsbuilder/internal/config"
	"github.com/raimediatech/kingsbuilder/internal/di"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

var (
	// chiLambda wraps the router for API Gateway HTTP APIs
	chiLambda *chiadapter.ChiLambdaV2

	container *di.Container

	coldStart = true
)

// init runs during cold start
func init() {
	coldStartTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg, err := config.LoadFromEnvironment()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	container, err = di.NewContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	if err := container.Start(ctx); err != nil {
		log.Fatalf("Failed to start container: %v", err)
	}

	router, ok := container.Router.(*chi.Mux)
	if !ok {
		log.Fatal("Failed to cast handler to chi.Mux")
	}
	chiLambda = chiadapter.NewV2(router)

	container.Logger.Info("Lambda cold start completed", zap.Duration("duration", time.Since(coldStartTime)))
}

// Handler is the Lambda function handler
func Handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	if coldStart {
		coldStart = false
		container.Logger.Info("First invocation after cold start",
			zap.String("requestId", req.RequestContext.RequestID),
		)
	}
	return chiLambda.ProxyWithContextV2(ctx, req)
}

func main() {
	lambda.Start(Handler)
}
