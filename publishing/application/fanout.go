package application

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/AzielCF/az-publish/publishing/domain"
	"github.com/sirupsen/logrus"
)

// fanOut publishes to every provider concurrently. Each goroutine owns one
// slot of the result slice, so results keep the requested order.
func (m *JobManager) fanOut(ctx context.Context, userID string, in domain.PublishInput, providers []string) []domain.ProviderResult {
	results := make([]domain.ProviderResult, len(providers))
	var wg sync.WaitGroup
	for i, provider := range providers {
		wg.Add(1)
		go func(i int, provider string) {
			defer wg.Done()
			results[i] = m.publishOne(ctx, userID, provider, in)
		}(i, provider)
	}
	wg.Wait()
	return results
}

func (m *JobManager) publishOne(ctx context.Context, userID, provider string, in domain.PublishInput) (res domain.ProviderResult) {
	res = domain.ProviderResult{Provider: provider}
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("[PUBLISH_JOB] Provider %s panicked: %v", provider, r)
			res = failed(domain.NewProviderError(provider, domain.KindPanic, fmt.Sprint(r)))
		}
	}()

	adapter, ok := m.adapters[provider]
	if !ok {
		return failed(domain.NewProviderError(provider, domain.KindUnsupported, ""))
	}

	cred, perr := m.credential(ctx, userID, provider)
	if perr != nil {
		return failed(perr)
	}
	in.Credential = cred

	out, err := adapter.Publish(ctx, in)
	if err != nil {
		kind := domain.KindProviderError
		if errors.Is(err, domain.ErrExternalUnreachable) {
			kind = domain.KindUnreachable
		}
		logrus.WithError(err).Warnf("[PUBLISH_JOB] Provider %s call failed", provider)
		return failed(domain.NewProviderError(provider, kind, err.Error()))
	}
	if !out.OK {
		msg := out.Error
		if msg == "" {
			msg = string(domain.KindProviderError)
		}
		return domain.ProviderResult{Provider: provider, OK: false, Error: msg}
	}
	return domain.ProviderResult{Provider: provider, OK: true, ExternalID: out.ExternalID}
}

// credential checks the user's connection, then asks the broker for a token.
func (m *JobManager) credential(ctx context.Context, userID, provider string) (domain.Credential, *domain.ProviderError) {
	if m.connections != nil {
		if _, err := m.connections.Get(ctx, userID, provider); err != nil {
			if errors.Is(err, domain.ErrConnectionNotFound) {
				return domain.Credential{}, domain.NewProviderError(provider, domain.KindNotConnected, "")
			}
			return domain.Credential{}, domain.NewProviderError(provider, domain.KindCredentialError, err.Error())
		}
	}
	if m.broker == nil {
		return domain.Credential{}, domain.NewProviderError(provider, domain.KindCredentialError, "no identity broker configured")
	}
	cred, err := m.broker.Credential(ctx, userID, provider)
	if err != nil {
		if errors.Is(err, domain.ErrConnectionNotFound) {
			return domain.Credential{}, domain.NewProviderError(provider, domain.KindNotConnected, "")
		}
		return domain.Credential{}, domain.NewProviderError(provider, domain.KindCredentialError, err.Error())
	}
	if !cred.Valid(m.now()) {
		return domain.Credential{}, domain.NewProviderError(provider, domain.KindCredentialError, "credential expired")
	}
	return cred, nil
}

func failed(err *domain.ProviderError) domain.ProviderResult {
	return domain.ProviderResult{Provider: err.Provider, OK: false, Error: err.Error()}
}
