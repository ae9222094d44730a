package ami

import (
    "context"
    "strings"
)

// The action surface below mirrors what the desktop protocol and the group
// broker actually invoke. Empty strings and zero uints are omitted from
// the frames; retries are the caller's choice.

// OriginateRequest carries the AMI-documented Originate headers. Either
// the Exten/Context/Priority triple or Application selects the far end.
type OriginateRequest struct {
    Channel     string
    Exten       string
    Context     string
    Priority    uint
    Application string
    Data        string
    Timeout     uint
    CallerID    string
    Variables   map[string]string
    Account     string
    EarlyMedia  bool
    Async       bool
    Codecs      []string
}

type RedirectRequest struct {
    Channel       string
    Exten         string
    Context       string
    Priority      uint
    ExtraChannel  string
    ExtraExten    string
    ExtraContext  string
    ExtraPriority uint
}

func (c *Client) Logoff(ctx context.Context) (Event, error) {
    return c.Send(ctx, Action{Name: "Logoff"})
}

func (c *Client) CoreShowChannels(ctx context.Context) (Event, error) {
    return c.Send(ctx, Action{Name: "CoreShowChannels"})
}

func (c *Client) SIPPeers(ctx context.Context) (Event, error) {
    return c.Send(ctx, Action{Name: "SIPpeers"})
}

func (c *Client) Originate(ctx context.Context, req OriginateRequest) (Event, error) {
    headers := map[string]string{
        "Channel":    req.Channel,
        "EarlyMedia": encodeValue(req.EarlyMedia),
        "Async":      encodeValue(req.Async),
    }

    setNotZero(headers, "Timeout", req.Timeout)
    setNotEmpty(headers, "CallerID", req.CallerID)
    setNotEmpty(headers, "Account", req.Account)
    setNotEmpty(headers, "Codecs", strings.Join(req.Codecs, ","))

    if req.Exten != "" && req.Context != "" && req.Priority > 0 {
        headers["Exten"] = req.Exten
        headers["Context"] = req.Context
        headers["Priority"] = encodeValue(req.Priority)
    }

    if req.Application != "" {
        headers["Application"] = req.Application
        setNotEmpty(headers, "Data", req.Data)
    }

    return c.Send(ctx, Action{
        Name:      "Originate",
        Headers:   headers,
        Variables: req.Variables,
    })
}

func (c *Client) PlayDTMF(ctx context.Context, channel string, digit rune) (Event, error) {
    return c.Send(ctx, Action{
        Name: "PlayDTMF",
        Headers: map[string]string{
            "Channel": channel,
            "Digit":   string(digit),
        },
    })
}

func (c *Client) Hangup(ctx context.Context, channel string, cause uint) (Event, error) {
    headers := map[string]string{"Channel": channel}
    setNotZero(headers, "Cause", cause)

    return c.Send(ctx, Action{Name: "Hangup", Headers: headers})
}

func (c *Client) Redirect(ctx context.Context, req RedirectRequest) (Event, error) {
    headers := map[string]string{
        "Channel":  req.Channel,
        "Exten":    req.Exten,
        "Context":  req.Context,
        "Priority": encodeValue(req.Priority),
    }

    setNotEmpty(headers, "ExtraChannel", req.ExtraChannel)
    setNotEmpty(headers, "ExtraExten", req.ExtraExten)
    setNotEmpty(headers, "ExtraContext", req.ExtraContext)
    setNotZero(headers, "ExtraPriority", req.ExtraPriority)

    return c.Send(ctx, Action{Name: "Redirect", Headers: headers})
}
