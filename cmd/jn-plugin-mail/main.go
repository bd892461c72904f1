// Command jn-plugin-mail is jn's reference protocol plugin for "mail"
// profiles: an account-shaped profile (host/port/username/password plus
// a "protocol" of "pop3" or "imap") drives either knadh/go-pop3 or
// emersion/go-imap/v2, with emersion/go-message decoding each message's
// envelope into an NDJSON record.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message"
	"github.com/knadh/go-pop3"

	"github.com/jn-run/jn/pkg/jnplugin"
)

func main() {
	os.Exit(plugin().Run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func plugin() jnplugin.Plugin {
	return jnplugin.Plugin{
		Manifest: jnplugin.Manifest{
			Name:    "mail",
			Version: "1.0.0",
			Role:    jnplugin.RoleProtocol,
			Modes:   []jnplugin.Mode{jnplugin.ModeProfiles},
			Matches: []string{"mail", "gmail"},
		},
		Handlers: map[jnplugin.Mode]jnplugin.Handler{
			jnplugin.ModeProfiles: fetchMail,
		},
	}
}

type mailConfig struct {
	Protocol string `json:"protocol"` // "pop3" (default) or "imap"
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	TLS      bool   `json:"tls"`
	Mailbox  string `json:"mailbox"` // IMAP only; defaults to "INBOX"
}

func decodeConfig(inv jnplugin.Invocation) mailConfig {
	var cfg mailConfig
	raw := inv.ProfileJSON
	str := func(k string) string { s, _ := raw[k].(string); return s }
	cfg.Protocol = str("protocol")
	cfg.Host = str("host")
	cfg.Username = str("username")
	cfg.Password = str("password")
	cfg.Mailbox = str("mailbox")
	if v, ok := raw["port"].(float64); ok {
		cfg.Port = int(v)
	}
	if v, ok := raw["tls"].(bool); ok {
		cfg.TLS = v
	}
	return cfg
}

func fetchMail(ctx context.Context, inv jnplugin.Invocation, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg := decodeConfig(inv)
	if cfg.Host == "" {
		return fmt.Errorf("jn-plugin-mail: profile has no \"host\" field")
	}
	if cfg.Protocol == "imap" {
		return fetchIMAP(ctx, cfg, stdout)
	}
	return fetchPOP3(cfg, stdout, stderr)
}

func fetchPOP3(cfg mailConfig, stdout, stderr io.Writer) error {
	port := cfg.Port
	if port == 0 {
		port = 995
	}
	p := pop3.New(pop3.Opt{Host: cfg.Host, Port: port, TLSEnabled: cfg.TLS})
	conn, err := p.NewConn()
	if err != nil {
		return fmt.Errorf("jn-plugin-mail: pop3 connect: %w", err)
	}
	defer conn.Quit()

	if err := conn.Auth(cfg.Username, cfg.Password); err != nil {
		return fmt.Errorf("jn-plugin-mail: pop3 auth: %w", err)
	}
	count, _, err := conn.Stat()
	if err != nil {
		return fmt.Errorf("jn-plugin-mail: pop3 stat: %w", err)
	}

	lw := jnplugin.NewLineWriter(stdout)
	for id := 1; id <= count; id++ {
		msg, err := conn.Retr(id)
		if err != nil {
			fmt.Fprintf(stderr, "jn-plugin-mail: skipping message %d: %v\n", id, err)
			continue
		}
		if err := lw.WriteObject(envelopeRecord(msg)); err != nil {
			return err
		}
	}
	return lw.Flush()
}

// envelopeRecord projects a decoded message's addressing headers into
// the flat record shape both fetch paths emit.
func envelopeRecord(msg *message.Entity) map[string]interface{} {
	return map[string]interface{}{
		"subject": msg.Header.Get("Subject"),
		"from":    msg.Header.Get("From"),
		"to":      msg.Header.Get("To"),
		"date":    msg.Header.Get("Date"),
	}
}

func fetchIMAP(ctx context.Context, cfg mailConfig, stdout io.Writer) error {
	port := cfg.Port
	if port == 0 {
		port = 993
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, port)
	client, err := imapclient.DialTLS(addr, nil)
	if err != nil {
		return fmt.Errorf("jn-plugin-mail: imap dial: %w", err)
	}
	defer client.Close()

	if err := client.Login(cfg.Username, cfg.Password).Wait(); err != nil {
		return fmt.Errorf("jn-plugin-mail: imap login: %w", err)
	}

	mailbox := cfg.Mailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	mbox, err := client.Select(mailbox, nil).Wait()
	if err != nil {
		return fmt.Errorf("jn-plugin-mail: selecting %q: %w", mailbox, err)
	}
	if mbox.NumMessages == 0 {
		return nil
	}

	seqSet := imap.SeqSetNum()
	seqSet.AddRange(1, mbox.NumMessages)
	fetchCmd := client.Fetch(seqSet, &imap.FetchOptions{Envelope: true})

	lw := jnplugin.NewLineWriter(stdout)
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		data, err := msg.Collect()
		if err != nil {
			return fmt.Errorf("jn-plugin-mail: collecting message: %w", err)
		}
		obj := map[string]interface{}{}
		if data.Envelope != nil {
			obj["subject"] = data.Envelope.Subject
			obj["date"] = data.Envelope.Date
			if len(data.Envelope.From) > 0 {
				obj["from"] = formatAddress(data.Envelope.From[0])
			}
		}
		if err := lw.WriteObject(obj); err != nil {
			return err
		}
	}
	if err := fetchCmd.Close(); err != nil {
		return fmt.Errorf("jn-plugin-mail: imap fetch: %w", err)
	}
	return lw.Flush()
}

func formatAddress(a imap.Address) string {
	if a.Name != "" {
		return fmt.Sprintf("%s <%s@%s>", a.Name, a.Mailbox, a.Host)
	}
	return a.Mailbox + "@" + a.Host
}
