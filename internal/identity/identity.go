// Package identity resolves DID documents to the two facts the rest of
// the service needs: a repository's PDS service endpoint (for the
// Follow Primer) and an issuer's current signing key (for the Auth
// Adapter). Generalizes the handle/DID extraction shape of
// TheAlyxGreen-firefly's didFunctions.go to full document resolution
// for both did:plc and did:web. See SPEC_FULL.md §4.E and §4.G.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Document is the subset of a DID document this service consumes.
type Document struct {
	ID                 string               `json:"id"`
	Service            []ServiceEndpoint    `json:"service"`
	VerificationMethod []VerificationMethod `json:"verificationMethod"`
}

// ServiceEndpoint is one entry of a DID document's service array.
type ServiceEndpoint struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	ServiceEndpoint string `json:"serviceEndpoint"`
}

// VerificationMethod is one entry of a DID document's
// verificationMethod array — the signing key material.
type VerificationMethod struct {
	ID                 string `json:"id"`
	Type               string `json:"type"`
	PublicKeyMultibase string `json:"publicKeyMultibase"`
}

// Resolver resolves did:plc and did:web identifiers to their document.
type Resolver struct {
	plcDirectory string
	client       *http.Client
}

// New builds a Resolver. plcDirectory is the base URL of the PLC
// directory (e.g. https://plc.directory), used for did:plc lookups;
// did:web lookups instead derive a URL from the DID itself.
func New(plcDirectory string) *Resolver {
	return &Resolver{
		plcDirectory: strings.TrimRight(plcDirectory, "/"),
		client:       &http.Client{Timeout: 10 * time.Second},
	}
}

// Resolve fetches and parses the DID document for did, dispatching on
// its method (did:plc or did:web).
func (r *Resolver) Resolve(ctx context.Context, did string) (*Document, error) {
	switch {
	case strings.HasPrefix(did, "did:plc:"):
		return r.resolvePLC(ctx, did)
	case strings.HasPrefix(did, "did:web:"):
		return r.resolveWeb(ctx, did)
	default:
		return nil, fmt.Errorf("identity: unsupported DID method: %s", did)
	}
}

func (r *Resolver) resolvePLC(ctx context.Context, did string) (*Document, error) {
	url := fmt.Sprintf("%s/%s", r.plcDirectory, did)
	return r.fetch(ctx, url)
}

// resolveWeb derives the well-known document URL from a did:web
// identifier per the did:web spec: did:web:example.com ->
// https://example.com/.well-known/did.json, and did:web:example.com:u:alice
// -> https://example.com/u/alice/did.json.
func (r *Resolver) resolveWeb(ctx context.Context, did string) (*Document, error) {
	rest := strings.TrimPrefix(did, "did:web:")
	parts := strings.Split(rest, ":")
	for i, p := range parts {
		parts[i] = strings.ReplaceAll(p, "%3A", ":")
	}

	var url string
	if len(parts) == 1 {
		url = fmt.Sprintf("https://%s/.well-known/did.json", parts[0])
	} else {
		url = fmt.Sprintf("https://%s/%s/did.json", parts[0], strings.Join(parts[1:], "/"))
	}
	return r.fetch(ctx, url)
}

func (r *Resolver) fetch(ctx context.Context, url string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("identity: build request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("identity: fetch %s: status %d", url, resp.StatusCode)
	}

	var doc Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("identity: decode document from %s: %w", url, err)
	}
	return &doc, nil
}

// PDSEndpoint returns the document's AtprotoPersonalDataServer service
// endpoint, used by the Follow Primer to find where to list records.
func (d *Document) PDSEndpoint() (string, error) {
	for _, svc := range d.Service {
		if svc.Type == "AtprotoPersonalDataServer" {
			return svc.ServiceEndpoint, nil
		}
	}
	return "", fmt.Errorf("identity: no AtprotoPersonalDataServer service in document for %s", d.ID)
}

// SigningKey returns the document's atproto signing key in multibase
// form, used by the Auth Adapter's KeyResolver.
func (d *Document) SigningKey() (string, error) {
	for _, vm := range d.VerificationMethod {
		if strings.HasSuffix(vm.ID, "#atproto") {
			return vm.PublicKeyMultibase, nil
		}
	}
	if len(d.VerificationMethod) > 0 {
		return d.VerificationMethod[0].PublicKeyMultibase, nil
	}
	return "", fmt.Errorf("identity: no verification method in document for %s", d.ID)
}
