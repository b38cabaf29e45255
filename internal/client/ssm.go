package client

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	apperrors "github.com/tareqmamari/credit-alarms/internal/errors"
	"github.com/tareqmamari/credit-alarms/internal/paramstore"
)

const serviceSSM = "ssm"

// Parameters implements paramstore.Parameters on SSM Parameter Store.
type Parameters struct {
	c *Client
}

var _ paramstore.Parameters = (*Parameters)(nil)

// GetParameters reads names in one call.
func (p *Parameters) GetParameters(ctx context.Context, names []string) (map[string]string, error) {
	var out *ssm.GetParametersOutput
	err := p.c.Do(ctx, serviceSSM, "GetParameters", func(ctx context.Context) error {
		var err error
		out, err = p.c.apis.SSM.GetParameters(ctx, &ssm.GetParametersInput{Names: names})
		return err
	})
	if err != nil {
		return nil, apperrors.NewParameterStore(names[0], err)
	}
	if len(out.InvalidParameters) > 0 {
		return nil, apperrors.NewParameterStore(out.InvalidParameters[0], fmt.Errorf("parameter not found"))
	}

	values := make(map[string]string, len(out.Parameters))
	for _, param := range out.Parameters {
		values[aws.ToString(param.Name)] = aws.ToString(param.Value)
	}
	for _, name := range names {
		if _, ok := values[name]; !ok {
			return nil, apperrors.NewParameterStore(name, fmt.Errorf("parameter not returned"))
		}
	}
	return values, nil
}

// PutParameter overwrites a String parameter.
func (p *Parameters) PutParameter(ctx context.Context, name, value, description string) error {
	err := p.c.Do(ctx, serviceSSM, "PutParameter", func(ctx context.Context) error {
		_, err := p.c.apis.SSM.PutParameter(ctx, &ssm.PutParameterInput{
			Name:        aws.String(name),
			Value:       aws.String(value),
			Description: aws.String(description),
			Type:        ssmtypes.ParameterTypeString,
			Overwrite:   aws.Bool(true),
		})
		return err
	})
	if err != nil {
		return apperrors.NewParameterStore(name, err)
	}
	return nil
}
