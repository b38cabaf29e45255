// Package signing builds the short-lived presigned URL that lets a
// notification recipient suppress further notifications for an instance.
package signing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"go.uber.org/zap"

	apperrors "github.com/tareqmamari/credit-alarms/internal/errors"
	"github.com/tareqmamari/credit-alarms/internal/security"
)

const (
	// Service is the signing name of API Gateway invocations.
	Service = "execute-api"
	// InstanceIDParam is the query parameter carrying the instance id.
	InstanceIDParam = "instance-id"

	// sha256 of the empty payload
	emptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
)

// SecretReader reads a secret's string value.
type SecretReader interface {
	SecretString(ctx context.Context, secretID string) (string, error)
}

// Keys is the access key pair stored in the signing secret.
type Keys struct {
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
}

// Options configure a Presigner.
type Options struct {
	SecretID string
	Host     string        // API Gateway host signed into the URL
	Endpoint string        // public URL the signed query is appended to
	URI      string        // canonical path of the suppression resource
	Region   string
	Expiry   time.Duration
}

// Presigner signs suppression URLs.
type Presigner struct {
	secrets SecretReader
	opts    Options
	signer  *v4.Signer
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a presigner.
func New(secrets SecretReader, opts Options, logger *zap.Logger) *Presigner {
	return &Presigner{
		secrets: secrets,
		opts:    opts,
		signer:  v4.NewSigner(),
		logger:  logger.Named("signing"),
		now:     time.Now,
	}
}

// SuppressURL returns a GET URL for the suppression endpoint carrying the
// instance id, valid for the configured expiry.
func (p *Presigner) SuppressURL(ctx context.Context, instanceID string) (string, error) {
	keys, err := p.keys(ctx)
	if err != nil {
		return "", err
	}
	return p.presign(ctx, keys, instanceID, p.now())
}

func (p *Presigner) keys(ctx context.Context) (Keys, error) {
	raw, err := p.secrets.SecretString(ctx, p.opts.SecretID)
	if err != nil {
		return Keys{}, apperrors.NewSigning(err)
	}
	var keys Keys
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return Keys{}, apperrors.NewSigning(fmt.Errorf("decode signing secret: %w", err))
	}
	if keys.AccessKey == "" || keys.SecretKey == "" {
		return Keys{}, apperrors.NewSigning(fmt.Errorf("signing secret has no access key"))
	}
	return keys, nil
}

func (p *Presigner) presign(ctx context.Context, keys Keys, instanceID string, at time.Time) (string, error) {
	query := url.Values{}
	query.Set("X-Amz-Expires", strconv.Itoa(int(p.opts.Expiry/time.Second)))
	query.Set(InstanceIDParam, instanceID)

	target := url.URL{Scheme: "https", Host: p.opts.Host, Path: p.opts.URI, RawQuery: query.Encode()}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return "", apperrors.NewSigning(err)
	}

	creds := aws.Credentials{AccessKeyID: keys.AccessKey, SecretAccessKey: keys.SecretKey}
	signed, _, err := p.signer.PresignHTTP(ctx, creds, req, emptyPayloadHash, Service, p.opts.Region, at.UTC())
	if err != nil {
		return "", apperrors.NewSigning(err)
	}

	signedURL, err := url.Parse(signed)
	if err != nil {
		return "", apperrors.NewSigning(err)
	}
	endpoint := p.opts.Endpoint
	if endpoint == "" {
		endpoint = "https://" + p.opts.Host + p.opts.URI
	}

	suppressURL := endpoint + "?" + signedURL.RawQuery
	p.logger.Debug("Presigned suppression URL",
		zap.String("instance_id", instanceID),
		zap.String("url", security.MaskURL(suppressURL)),
		zap.Duration("expiry", p.opts.Expiry),
	)
	return suppressURL, nil
}
