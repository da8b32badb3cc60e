package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/ubuntu/recordfeed/internal/api/httpapi"
	"github.com/ubuntu/recordfeed/internal/dispatch"
	"github.com/ubuntu/recordfeed/internal/repository"
	"github.com/ubuntu/recordfeed/internal/view"
	"github.com/ubuntu/recordfeed/internal/viewmodel"
)

// pipeline is a state holder rendered by a view, with the loop its state changes on.
type pipeline struct {
	loop    *dispatch.Loop
	records *viewmodel.Records
}

// newPipeline composes remote, repository, state holder and view. Failures are rendered to errOut.
func (a *App) newPipeline(cmd *cobra.Command, errOut io.Writer, clientOpts []httpapi.Options, args ...viewmodel.Options) (*pipeline, error) {
	format, err := view.ParseFormat(a.config.Output)
	if err != nil {
		return nil, err
	}
	client, err := a.newClient(clientOpts...)
	if err != nil {
		return nil, err
	}

	loop := dispatch.New()
	records := viewmodel.New(repository.New(client), loop, args...)
	// Nothing is applied before the loop runs: the view sees every change.
	view.NewTable(cmd.OutOrStdout(), view.WithFormat(format), view.WithErrorOutput(errOut)).Bind(records)

	return &pipeline{loop: loop, records: records}, nil
}

// runOnce runs the loop until sub terminates, and returns its failure if any.
func (p *pipeline) runOnce(ctx context.Context, sub *viewmodel.Subscription) error {
	defer p.records.Close()

	go func() {
		select {
		case <-sub.Done():
		case <-ctx.Done():
		}
		p.loop.Stop()
	}()

	if err := p.loop.Run(ctx); err != nil {
		return err
	}

	switch sub.State() {
	case viewmodel.Delivered:
		return nil
	case viewmodel.Failed:
		return p.records.LastError().Get()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.New("fetch canceled")
}

// runUntilDone runs the loop until ctx is done.
func (p *pipeline) runUntilDone(ctx context.Context) error {
	defer p.records.Close()
	defer p.loop.Stop()

	err := p.loop.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("presentation loop failed: %v", err)
	}
	return nil
}
