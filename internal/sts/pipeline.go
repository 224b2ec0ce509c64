package sts

import (
	"context"
	"errors"
	"fmt"

	"lib.kevinlin.info/aperture/lib"

	"mtastsd/internal/log"
	"mtastsd/internal/metrics"
	"mtastsd/internal/resolver"
)

// Stage names, as reported to metrics.
const (
	StageLookup   = "txt_lookup"
	StageValidate = "txt_validate"
	StageFetch    = "http_fetch"
)

// stage is one step of a policy resolution. It either advances the request or fails.
type stage struct {
	name string
	run  func(ctx context.Context, req *PolicyRequest) error
}

// Pipeline resolves policy requests.
type Pipeline struct {
	Resolver resolver.TXTResolver
	Fetcher  *Fetcher
	Hook     metrics.PipelineHook
	Stats    *metrics.Stats
	Logger   log.Logger
}

// Resolve runs the lookup, validation, and fetch stages in order and returns the raw policy
// document. The first failing stage ends the resolution; its error is always a *Failure.
//
// Resolve does not observe the client going away except right before the fetch: a lookup in
// progress is allowed to finish.
func (p *Pipeline) Resolve(ctx context.Context, req *PolicyRequest) (string, error) {
	var policy string

	stages := []stage{
		{StageLookup, p.lookupTXT},
		{StageValidate, p.validateTXT},
		{StageFetch, func(ctx context.Context, req *PolicyRequest) (err error) {
			policy, err = p.fetchPolicy(ctx, req)
			return err
		}},
	}

	if err := p.run(ctx, req, stages); err != nil {
		return "", err
	}

	p.Logger.Deferred(log.Debug, func() string {
		return fmt.Sprintf(
			"sts: resolved policy: id=%s host=%s policy_id=%s policy_bytes=%d",
			req.Client.ID(),
			req.Host,
			req.ID,
			len(policy),
		)
	})

	return policy, nil
}

// run executes stages in order, stopping at the first error. Errors that are not a *Failure are
// reported as HTTPFailed.
func (p *Pipeline) run(ctx context.Context, req *PolicyRequest, stages []stage) error {
	rttTimer := lib.NewStopwatch()

	for _, s := range stages {
		stageTimer := lib.NewStopwatch()
		err := s.run(ctx, req)
		p.Hook.EmitStageLatency(s.name, stageTimer.Elapsed())

		if err != nil {
			var failure *Failure
			if !errors.As(err, &failure) {
				failure = fail(HTTPFailed, err)
			}

			p.Logger.Info(
				"sts: resolution failed: id=%s host=%s stage=%s err=%v",
				req.Client.ID(),
				req.Host,
				s.name,
				err,
			)
			p.Hook.EmitFailure(failure.Kind.String())
			p.Stats.IncFailure(failure.Kind.String())

			return failure
		}
	}

	p.Hook.EmitSuccess(rttTimer.Elapsed())

	return nil
}

// lookupTXT stores the single discovery record of the requested host. Lookup errors, no records,
// and multiple records are all reported alike.
func (p *Pipeline) lookupTXT(ctx context.Context, req *PolicyRequest) error {
	records, err := p.Resolver.LookupTXT(ctx, req.RecordName())
	if err != nil {
		return fail(TXTMissing, err)
	}

	if len(records) != 1 {
		return fail(TXTMissing, fmt.Errorf("sts: expected one TXT record: name=%s records=%d", req.RecordName(), len(records)))
	}

	req.TXT = records[0]

	p.Logger.Debug("sts: found TXT record: id=%s host=%s txt=%q", req.Client.ID(), req.Host, req.TXT)

	return nil
}

// validateTXT requires the discovery record to confirm STSv1 and to carry a policy id.
func (p *Pipeline) validateTXT(ctx context.Context, req *PolicyRequest) error {
	if stripSpace(req.TXT) == "" {
		return fail(TXTMalformed, nil)
	}

	req.Version, req.ID = parseRecord(req.TXT)

	if !req.Version {
		return fail(TXTInvalid, fmt.Errorf("sts: record does not declare v=STSv1"))
	}

	if req.ID == "" {
		return fail(TXTInvalid, fmt.Errorf("sts: record has no id"))
	}

	return nil
}

// fetchPolicy retrieves the policy document, unless the client is already gone.
func (p *Pipeline) fetchPolicy(ctx context.Context, req *PolicyRequest) (string, error) {
	if req.Client.Destroyed() {
		return "", fail(ClientClosed, nil)
	}

	policy, err := p.Fetcher.Fetch(ctx, req.PolicyHost())
	if err != nil {
		return "", fail(HTTPFailed, err)
	}

	return policy, nil
}
