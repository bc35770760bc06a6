package main

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	pubnubgo "github.com/pubnub/go/v7"
)

var _ Pubnub = (*pubnub)(nil)

type PubNubConfig struct {
	PublishKey, SubscribeKey, SecretKey, UUIDKey, UUIDSubKey string
}

func (c PubNubConfig) Enabled() bool {
	return c.PublishKey != "" && c.SubscribeKey != ""
}

func NewPubnub(pnCfg *PubNubConfig) (Pubnub, error) {
	if pnCfg == nil {
		return nil, fmt.Errorf("[NewPubnub] pnCfg: must not be nil")
	}

	cfg := pubnubgo.NewConfigWithUserId(pubnubgo.UserId(pnCfg.UUIDKey))
	cfg.PublishKey = pnCfg.PublishKey
	cfg.SubscribeKey = pnCfg.SubscribeKey
	cfg.SecretKey = pnCfg.SecretKey

	return &pubnub{
		pn:         pubnubgo.NewPubNub(cfg),
		uuidSubKey: pnCfg.UUIDSubKey,
	}, nil
}

// Pubnub publishes queue events to devices that are not connected to this
// server's event stream.
type Pubnub interface {
	Publish(ctx context.Context, channel string, messagePayload any) (string, error)
	GenGrantToken(ctx context.Context, channel string) (string, error)
}

type pubnub struct {
	pn         *pubnubgo.PubNub
	uuidSubKey string
}

func (p *pubnub) Publish(ctx context.Context, channel string, messagePayload any) (string, error) {
	messageJSON, err := setPrepareMessage(messagePayload)
	if err != nil {
		return "", err
	}

	resp, _, err := p.pn.PublishWithContext(ctx).Channel(channel).Message(messageJSON).Execute()
	if err != nil {
		return "", err
	}

	return strconv.FormatInt(resp.Timestamp, 10), nil
}

// GenGrantToken issues a short-lived read-only token for the queue channel.
func (p *pubnub) GenGrantToken(ctx context.Context, channel string) (string, error) {
	grantToken := p.pn.GrantTokenWithContext(ctx)
	permissions := map[string]pubnubgo.ChannelPermissions{
		"^" + regexp.QuoteMeta(channel) + "$": {
			Read: true,
		},
	}

	token, _, err := grantToken.TTL(60).AuthorizedUUID(p.uuidSubKey).ChannelsPattern(permissions).Execute()
	if err != nil {
		return "", err
	}

	return token.Data.Token, nil
}

// setPrepareMessage is a function to format message to JSON
func setPrepareMessage(messagePayload any) (string, error) {
	messageJSON, err := json.Marshal(messagePayload)
	if err != nil {
		return "", err
	}

	return string(messageJSON), nil
}
