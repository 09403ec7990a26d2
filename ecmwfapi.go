// Package ecmwfapi provides access to the ECMWF Web API: submitting a
// retrieval request, polling the server-assigned job until it
// completes, and downloading the result file with resumption across
// interrupted transfers.
//
// [DataServer] retrieves public datasets; [Service] invokes compute
// services such as MARS. Both resolve credentials through the
// [github.com/ecmwf/ecmwf-api-client-go/apikey] chain unless an
// explicit key is supplied, and both delegate the protocol work to
// [github.com/ecmwf/ecmwf-api-client-go/client].
package ecmwfapi

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ecmwf/ecmwf-api-client-go/apikey"
	"github.com/ecmwf/ecmwf-api-client-go/client"
)

// Request is the caller-supplied mapping of retrieval parameters. Two
// keys are reserved: "dataset" (or the service name, for [Service])
// selects the URL route, and "target" names the local destination
// file. The mapping is passed to the server verbatim.
type Request map[string]any

// DataServer submits retrieval requests for public datasets.
type DataServer struct {
	key        apikey.Key
	clientOpts []client.Option
}

// NewDataServer builds a DataServer, resolving credentials through the
// standard chain unless [WithKey] supplies them.
func NewDataServer(optFns ...Option) (*DataServer, error) {
	opts, err := buildOptions(optFns)
	if err != nil {
		return nil, err
	}

	return &DataServer{
		key:        opts.key,
		clientOpts: opts.client,
	}, nil
}

// Retrieve runs one dataset request end to end and returns the result
// mapping. When req carries a "target" key, the result file is
// downloaded there.
func (ds *DataServer) Retrieve(ctx context.Context, req Request) (client.Result, error) {
	dataset, _ := req["dataset"].(string)
	if dataset == "" {
		return nil, errors.New("request is missing a dataset")
	}
	target, _ := req["target"].(string)

	sess, err := client.NewSession(ctx, ds.key, "datasets/"+dataset, ds.clientOpts...)
	if err != nil {
		return nil, err
	}

	return sess.Execute(ctx, req, target)
}

// Service submits requests to a named compute service, e.g. "mars".
type Service struct {
	name       string
	key        apikey.Key
	logger     *slog.Logger
	clientOpts []client.Option
}

// NewService builds a Service facade for the named service, resolving
// credentials through the standard chain unless [WithKey] supplies
// them.
func NewService(name string, optFns ...Option) (*Service, error) {
	if name == "" {
		return nil, errors.New("service name must not be empty")
	}

	opts, err := buildOptions(optFns)
	if err != nil {
		return nil, err
	}

	return &Service{
		name:       name,
		key:        opts.key,
		logger:     opts.logger,
		clientOpts: opts.client,
	}, nil
}

// Execute runs one service request end to end, downloading the result
// into target, and returns the result mapping.
func (s *Service) Execute(ctx context.Context, req Request, target string) (client.Result, error) {
	sess, err := client.NewSession(ctx, s.key, "services/"+s.name, s.clientOpts...)
	if err != nil {
		return nil, err
	}

	result, err := sess.Execute(ctx, req, target)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Done")

	return result, nil
}
