// Package distid resolves the CloudFront distribution id the invalidator
// submits to. The id is process-wide configuration: either a static value
// (usually CLOUDFRONT_DISTRIBUTION_ID) or an SSM parameter read once.
package distid

import (
	"context"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/pagepush/internal/xerrors"
)

// ErrNotConfigured is returned when no distribution id is available.
var ErrNotConfigured = xerrors.New("CloudFront distribution ID not configured")

type Source interface {
	DistributionID(ctx context.Context) (string, error)
}

// Static is a fixed id. An empty Static reports ErrNotConfigured.
type Static string

func (s Static) DistributionID(context.Context) (string, error) {
	id := strings.TrimSpace(string(s))
	if id == "" {
		return "", ErrNotConfigured
	}
	return id, nil
}

type GetParameterAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSM reads the id from a parameter on first use and caches it for the life
// of the process. Failed reads are not cached, the next call tries again.
type SSM struct {
	client GetParameterAPI
	param  string

	mu sync.Mutex
	id string
}

func NewSSM(client GetParameterAPI, param string) *SSM {
	return &SSM{client: client, param: param}
}

func (s *SSM) DistributionID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id != "" {
		return s.id, nil
	}
	if s.param == "" {
		return "", ErrNotConfigured
	}

	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(s.param),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get SSM parameter %s", s.param)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", s.param)
	}
	id := strings.TrimSpace(*out.Parameter.Value)
	if id == "" {
		return "", xerrors.Newf("SSM parameter %s is empty", s.param)
	}
	s.id = id
	return id, nil
}

// FirstOf tries each source in order and returns the first id found.
type FirstOf []Source

func (f FirstOf) DistributionID(ctx context.Context) (string, error) {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		id, err := s.DistributionID(ctx)
		if err == nil {
			return id, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return "", ErrNotConfigured
	}
	// surface the most specific failure, the static miss is only a fallback
	return "", errs[len(errs)-1]
}
