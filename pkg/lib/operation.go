package lib

import (
	"context"
	"fmt"

	"github.com/cementlab/simops/internal/app/cancel"
	"github.com/cementlab/simops/internal/app/lineagequery"
	"github.com/cementlab/simops/internal/app/list"
	"github.com/cementlab/simops/internal/app/pause"
	"github.com/cementlab/simops/internal/app/remove"
	"github.com/cementlab/simops/internal/app/resume"
	"github.com/cementlab/simops/internal/app/status"
	"github.com/cementlab/simops/internal/app/submit"
	"github.com/cementlab/simops/internal/model"
)

// Submit validates and submits a new operation: its parameters are frozen,
// the external program is spawned and its handle is bound to the stored
// record in the background.
//
// Returns [ErrNotValid] on an invalid submission (zero footprint is left
// behind), or [ErrAlreadyExists] if the name is taken.
func (c *Client) Submit(ctx context.Context, opts SubmitOpts) (*Operation, error) {
	svc, err := submit.NewService(submit.ServiceConfig{
		Repository: c.repo,
		Supervisor: c.superv,
		Registrar:  c.reg,
		Lineage:    c.tracker,
		DataDir:    c.dataDir,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	op, err := svc.Run(ctx, submit.Request{Config: model.SubmissionConfig{
		Name:       opts.Name,
		Type:       model.OperationType(opts.Type),
		ParentName: opts.Parent,
		Parameters: model.Parameters(opts.Parameters),
	}})
	if err != nil {
		return nil, mapError(err)
	}

	result := fromInternalOperation(*op)
	return &result, nil
}

// Pause suspends a running operation's process.
//
// Returns [ErrNotFound] if the operation does not exist, [ErrNotValid] if it
// is not running, or [ErrNotRunning] if this client holds no live handle for
// it (it was spawned elsewhere).
func (c *Client) Pause(ctx context.Context, nameOrID string) (*Operation, error) {
	svc, err := pause.NewService(pause.ServiceConfig{
		Supervisor: c.superv,
		Repository: c.repo,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	op, err := svc.Run(ctx, pause.Request{NameOrID: nameOrID})
	if err != nil {
		return nil, mapError(err)
	}

	result := fromInternalOperation(*op)
	return &result, nil
}

// Resume continues a paused operation's process.
//
// Returns [ErrNotFound] if the operation does not exist, [ErrNotValid] if it
// is not paused, or [ErrNotRunning] if this client holds no live handle for it.
func (c *Client) Resume(ctx context.Context, nameOrID string) (*Operation, error) {
	svc, err := resume.NewService(resume.ServiceConfig{
		Supervisor: c.superv,
		Repository: c.repo,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	op, err := svc.Run(ctx, resume.Request{NameOrID: nameOrID})
	if err != nil {
		return nil, mapError(err)
	}

	result := fromInternalOperation(*op)
	return &result, nil
}

// Cancel requests graceful termination of an operation's process, escalating
// to a forced kill after the configured grace period. With wait it blocks
// until the process has actually been reaped.
//
// Returns [ErrNotValid] when the operation is already terminal.
func (c *Client) Cancel(ctx context.Context, nameOrID string, wait bool) (*Operation, error) {
	svc, err := cancel.NewService(cancel.ServiceConfig{
		Supervisor: c.superv,
		Repository: c.repo,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	op, err := svc.Run(ctx, cancel.Request{NameOrID: nameOrID, Wait: wait})
	if err != nil {
		return nil, mapError(err)
	}

	result := fromInternalOperation(*op)
	return &result, nil
}

// Remove deletes an operation record and, unless keepFiles is set, its
// working directory. Children keep their parent reference, the link is
// allowed to dangle. With force a live operation is cancelled first.
func (c *Client) Remove(ctx context.Context, nameOrID string, force, keepFiles bool) (*Operation, error) {
	svc, err := remove.NewService(remove.ServiceConfig{
		Supervisor: c.superv,
		Repository: c.repo,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	op, err := svc.Run(ctx, remove.Request{
		NameOrID:  nameOrID,
		Force:     force,
		KeepFiles: keepFiles,
	})
	if err != nil {
		return nil, mapError(err)
	}

	result := fromInternalOperation(*op)
	return &result, nil
}

// List lists operations with optional filtering. Pass nil opts for all
// operations.
func (c *Client) List(ctx context.Context, opts *ListOpts) ([]Operation, error) {
	svc, err := list.NewService(list.ServiceConfig{
		Repository: c.repo,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	var filter *model.OperationStatus
	if opts != nil && opts.Status != nil {
		s := model.OperationStatus(*opts.Status)
		filter = &s
	}

	ops, err := svc.Run(ctx, list.Request{StatusFilter: filter})
	if err != nil {
		return nil, mapError(err)
	}

	return fromInternalOperationList(ops), nil
}

// Get retrieves an operation by name or ID.
//
// Returns [ErrNotFound] if the operation does not exist.
func (c *Client) Get(ctx context.Context, nameOrID string) (*Operation, error) {
	svc, err := status.NewService(status.ServiceConfig{
		Repository: c.repo,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	op, err := svc.Run(ctx, status.Request{NameOrID: nameOrID})
	if err != nil {
		return nil, mapError(err)
	}

	result := fromInternalOperation(*op)
	return &result, nil
}

// Lineage resolves the parent and children of an operation by name or ID.
func (c *Client) Lineage(ctx context.Context, nameOrID string) (*Lineage, error) {
	svc, err := lineagequery.NewService(lineagequery.ServiceConfig{
		Repository: c.repo,
		Lineage:    c.tracker,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	resp, err := svc.Run(ctx, lineagequery.Request{NameOrID: nameOrID})
	if err != nil {
		return nil, mapError(err)
	}

	result := &Lineage{
		Operation:      fromInternalOperation(resp.Operation),
		ParentDangling: resp.ParentDangling,
		Children:       fromInternalOperationList(resp.Children),
	}
	if resp.Parent != nil {
		parent := fromInternalOperation(*resp.Parent)
		result.Parent = &parent
	}

	return result, nil
}

// Wait blocks until the operation's process has been reaped or the context is
// done. An operation without a live handle in this client returns immediately.
func (c *Client) Wait(ctx context.Context, operationID string) error {
	return c.superv.Wait(ctx, operationID)
}
