// publishfeed is the one-shot admin utility that logs in as the
// configured bot account and publishes an app.bsky.feed.generator
// record for every feed in the YAML configuration, per
// original_source/src/publishfeed.py. It uses put_record (upsert by
// rkey), not create_record, so re-running it is idempotent.
//
// Usage:
//
//	./publishfeed -config feedgen.yaml [-feed <key>] [-avatar <path>]
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

func main() {
	configPath := flag.String("config", "feedgen.yaml", "path to YAML configuration file")
	feedKey := flag.String("feed", "", "publish only this configured feed key (default: all)")
	avatarPath := flag.String("avatar", "", "path to an avatar image to upload, overriding the feed's avatar_path")
	pdsURL := flag.String("pds", "https://bsky.social", "the bot account's own PDS base URL")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("publishfeed: load config: %v", err)
	}
	if err := cfg.validateAdmin(); err != nil {
		log.Fatalf("publishfeed: %v", err)
	}

	pub := &Publisher{
		pdsURL: strings.TrimRight(*pdsURL, "/"),
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}

	if err := pub.login(); err != nil {
		log.Fatalf("publishfeed: login failed: %v", err)
	}
	log.Printf("Logged in as %s (%s)", cfg.Handle, pub.did)

	for key, feedCfg := range cfg.Feeds {
		if *feedKey != "" && key != *feedKey {
			continue
		}

		path := feedCfg.AvatarPath
		if *avatarPath != "" {
			path = *avatarPath
		}

		var blob *blobRef
		if path != "" {
			b, err := pub.uploadAvatar(path)
			if err != nil {
				log.Fatalf("publishfeed: upload avatar for %s: %v", key, err)
			}
			blob = b
		}

		if err := pub.putFeedGeneratorRecord(cfg, feedCfg, blob); err != nil {
			log.Fatalf("publishfeed: publish %s: %v", key, err)
		}
		log.Printf("Published feed %q (record_name=%s)", key, feedCfg.RecordName)
	}

	fmt.Println("Successfully published!")
}

// --- minimal config loading (publishfeed is a standalone client of
// the YAML config, so it avoids importing internal/config's
// serving-process validation). ---

type feedConfig struct {
	RecordName  string `yaml:"record_name"`
	DisplayName string `yaml:"display_name"`
	Description string `yaml:"description"`
	AvatarPath  string `yaml:"avatar_path"`
}

type adminConfig struct {
	Handle   string                `yaml:"handle"`
	Password string                `yaml:"password"`
	Hostname string                `yaml:"hostname"`
	Feeds    map[string]feedConfig `yaml:"feeds"`
}

func (c *adminConfig) validateAdmin() error {
	if c.Handle == "" || c.Password == "" {
		return fmt.Errorf("handle and password are required in config")
	}
	if c.Hostname == "" {
		return fmt.Errorf("hostname is required in config")
	}
	return nil
}

func loadConfig(path string) (*adminConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg adminConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Publisher logs into the bot account's own PDS and issues
// putRecord/uploadBlob calls against it.
type Publisher struct {
	pdsURL string
	cfg    *adminConfig
	client *http.Client

	did       string
	accessJwt string
}

type blobRef struct {
	Type     string `json:"$type"`
	Ref      any    `json:"ref"`
	MimeType string `json:"mimeType"`
	Size     int    `json:"size"`
}

func (p *Publisher) login() error {
	payload := map[string]string{
		"identifier": p.cfg.Handle,
		"password":   p.cfg.Password,
	}
	body, _ := json.Marshal(payload)

	resp, err := p.client.Post(p.pdsURL+"/xrpc/com.atproto.server.createSession", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s - %s", resp.Status, string(respBody))
	}

	var session struct {
		Did       string `json:"did"`
		AccessJwt string `json:"accessJwt"`
	}
	if err := json.Unmarshal(respBody, &session); err != nil {
		return err
	}
	p.did = session.Did
	p.accessJwt = session.AccessJwt
	return nil
}

func (p *Publisher) uploadAvatar(path string) (*blobRef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest("POST", p.pdsURL+"/xrpc/com.atproto.repo.uploadBlob", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Authorization", "Bearer "+p.accessJwt)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s - %s", resp.Status, string(respBody))
	}

	var out struct {
		Blob blobRef `json:"blob"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, err
	}
	return &out.Blob, nil
}

func (p *Publisher) putFeedGeneratorRecord(cfg *adminConfig, feedCfg feedConfig, avatar *blobRef) error {
	record := map[string]any{
		"$type":       "app.bsky.feed.generator",
		"did":         "did:web:" + cfg.Hostname,
		"displayName": feedCfg.DisplayName,
		"description": feedCfg.Description,
		"createdAt":   time.Now().UTC().Format(time.RFC3339),
	}
	if avatar != nil {
		record["avatar"] = avatar
	}

	payload := map[string]any{
		"repo":       p.did,
		"collection": "app.bsky.feed.generator",
		"rkey":       feedCfg.RecordName,
		"record":     record,
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequest("POST", p.pdsURL+"/xrpc/com.atproto.repo.putRecord", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.accessJwt)

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s - %s", resp.Status, string(respBody))
	}
	return nil
}
