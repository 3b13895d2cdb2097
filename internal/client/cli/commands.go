package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Sonicx161/aiomanager/internal/client/export"
	"github.com/Sonicx161/aiomanager/internal/client/models"
	"github.com/Sonicx161/aiomanager/internal/client/stores"
	"github.com/Sonicx161/aiomanager/internal/common"
)

// Login pulls the remote snapshot with the entered password, which also
// unlocks the vault. A missing snapshot is not fatal: the vault is unlocked
// with a fresh salt and the first push creates the snapshot.
func (a *App) Login(ctx context.Context) error {
	password, err := GetPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	err = a.coordinator.Pull(ctx, string(password))
	switch {
	case err == nil:
		fmt.Fprintln(a.out, "Snapshot pulled.")

	case errors.Is(err, common.ErrNotFound):
		salt, saltErr := a.firstUnlockSalt(ctx)
		if saltErr != nil {
			return saltErr
		}
		a.vault.Unlock(password, salt)
		fmt.Fprintln(a.out, "No remote snapshot yet; starting fresh.")

	case errors.Is(err, common.ErrCorruptRemoteState):
		return fmt.Errorf("the remote snapshot is damaged; delete it or restore from an export: %w", err)

	default:
		return err
	}

	// The vault is open now, so sealed account credentials can be restored.
	if err := a.accounts.LoadCredentials(ctx); err != nil {
		return err
	}

	if a.authority != nil {
		token, err := a.vault.AuthToken()
		if err != nil {
			return err
		}
		if err := a.authority.Login(ctx, a.config.SyncID, token); err != nil {
			a.log.Warn(ctx, "failover authority login failed, staying in local mode", "error", err)
		} else if err := a.engine.EnableDelegation(ctx); err != nil {
			a.log.Warn(ctx, "enabling delegation failed", "error", err)
		}
	}
	return nil
}

// firstUnlockSalt reuses the cached salt or generates one for a brand-new
// vault.
func (a *App) firstUnlockSalt(ctx context.Context) ([]byte, error) {
	cached, err := a.repo.Get(ctx, common.KeySalt)
	if err != nil {
		return nil, err
	}
	if len(cached) > 0 {
		return cached, nil
	}

	salt := common.GenerateRandByteArray(16)
	if err := a.repo.Set(ctx, common.KeySalt, salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// Pull re-fetches the remote snapshot, for example after another device
// pushed. The password is prompted again so the payload can be decrypted
// even when the local key was derived with a different salt.
func (a *App) Pull(ctx context.Context) error {
	password, err := GetPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	switch err := a.coordinator.Pull(ctx, string(password)); {
	case err == nil:
		fmt.Fprintln(a.out, "Snapshot pulled.")
		return a.accounts.LoadCredentials(ctx)
	case errors.Is(err, common.ErrCorruptRemoteState):
		return fmt.Errorf("the remote snapshot is damaged; delete it or restore from an export: %w", err)
	default:
		return err
	}
}

func (a *App) Push(ctx context.Context) error {
	if err := a.coordinator.Push(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Snapshot pushed.")
	return nil
}

func (a *App) Lock(context.Context) error {
	a.vault.Lock()
	fmt.Fprintln(a.out, "Vault locked.")
	return nil
}

func (a *App) ListAccounts(context.Context) error {
	accounts := a.accounts.Accounts()
	if len(accounts) == 0 {
		fmt.Fprintln(a.out, "No accounts.")
		return nil
	}
	for _, acc := range accounts {
		label := acc.Email
		if label == "" {
			label = "(key only)"
		}
		fmt.Fprintf(a.out, "%s  %s  %d addons\n", acc.ID, label, len(acc.Addons))
		for i, addon := range acc.Addons {
			marker := " "
			if !addon.Flags.Enabled {
				marker = "-"
			}
			if addon.Flags.Protected {
				marker += "*"
			}
			fmt.Fprintf(a.out, "  %2d %s %s (%s)\n", i, marker, addon.DisplayName(), addon.TransportURL)
		}
	}
	return nil
}

func (a *App) AddAccount(ctx context.Context) error {
	email, err := GetSimpleText(a.reader, "Enter account email (empty to use an auth key)", a.out)
	if err != nil {
		return err
	}

	var acc models.Account
	if email == "" {
		key, err := GetSimpleText(a.reader, "Enter auth key", a.out)
		if err != nil {
			return err
		}
		acc, err = a.accounts.AddAccountWithKey(ctx, key)
		if err != nil {
			return err
		}
	} else {
		password, err := GetPassword(a.out)
		if err != nil {
			return err
		}
		defer common.WipeByteArray(password)
		acc, err = a.accounts.AddAccountWithCredentials(ctx, email, string(password))
		if err != nil {
			return err
		}
	}

	fmt.Fprintf(a.out, "Added account %s with %d addons.\n", acc.ID, len(acc.Addons))
	return nil
}

func (a *App) RemoveAccount(ctx context.Context) error {
	id, err := GetSimpleText(a.reader, "Enter account id", a.out)
	if err != nil {
		return err
	}
	return a.accounts.RemoveAccount(ctx, id)
}

func (a *App) SyncAccount(ctx context.Context) error {
	id, err := GetSimpleText(a.reader, "Enter account id", a.out)
	if err != nil {
		return err
	}
	refresh, err := GetSimpleText(a.reader, "Re-derive broken manifests? (y/N)", a.out)
	if err != nil {
		return err
	}
	return a.accounts.SyncAccount(ctx, id, strings.EqualFold(refresh, "y"))
}

func (a *App) Install(ctx context.Context) error {
	id, url, err := a.askAccountAndURL(ctx)
	if err != nil {
		return err
	}
	return a.accounts.Install(ctx, id, url)
}

func (a *App) Remove(ctx context.Context) error {
	id, url, err := a.askAccountAndURL(ctx)
	if err != nil {
		return err
	}
	err = a.accounts.Remove(ctx, id, url)
	if errors.Is(err, common.ErrProtected) {
		return fmt.Errorf("addon is protected; unprotect it first")
	}
	return err
}

func (a *App) Reorder(ctx context.Context) error {
	id, err := GetSimpleText(a.reader, "Enter account id", a.out)
	if err != nil {
		return err
	}
	order, err := GetIntList(a.reader, "Enter new order as old indices, comma separated (e.g. 2,0,1)", a.out)
	if err != nil {
		return err
	}
	return a.accounts.Reorder(ctx, id, order)
}

func (a *App) Enable(ctx context.Context) error {
	id, url, err := a.askAccountAndURL(ctx)
	if err != nil {
		return err
	}
	return a.accounts.ToggleEnabled(ctx, id, url, stores.ToggleOptions{})
}

func (a *App) Protect(ctx context.Context) error {
	id, url, err := a.askAccountAndURL(ctx)
	if err != nil {
		return err
	}
	return a.accounts.ToggleProtected(ctx, id, url, stores.ToggleOptions{})
}

func (a *App) askAccountAndURL(context.Context) (string, string, error) {
	id, err := GetSimpleText(a.reader, "Enter account id", a.out)
	if err != nil {
		return "", "", err
	}
	url, err := GetSimpleText(a.reader, "Enter addon transport URL", a.out)
	if err != nil {
		return "", "", err
	}
	return id, url, nil
}

func (a *App) Library(ctx context.Context) error {
	action, err := GetSimpleText(a.reader, "Library action: list / add / delete / tag", a.out)
	if err != nil {
		return err
	}

	switch action {
	case "list", "":
		for _, item := range a.library.List() {
			fmt.Fprintf(a.out, "%s  %s (%s) tags=%s\n", item.ID, item.Name, item.TransportURL, strings.Join(item.Tags, ","))
		}
		return nil

	case "add":
		name, err := GetSimpleText(a.reader, "Enter name", a.out)
		if err != nil {
			return err
		}
		url, err := GetSimpleText(a.reader, "Enter addon transport URL", a.out)
		if err != nil {
			return err
		}
		tags, err := GetSimpleText(a.reader, "Enter tags, comma separated (optional)", a.out)
		if err != nil {
			return err
		}
		item := models.SavedAddon{Name: name, TransportURL: url}
		if tags != "" {
			for _, t := range strings.Split(tags, ",") {
				item.Tags = append(item.Tags, strings.TrimSpace(t))
			}
		}
		saved, err := a.library.Add(ctx, item)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Saved as %s.\n", saved.ID)
		return nil

	case "delete":
		id, err := GetSimpleText(a.reader, "Enter saved addon id", a.out)
		if err != nil {
			return err
		}
		return a.library.Delete(ctx, id)

	case "tag":
		oldTag, err := GetSimpleText(a.reader, "Enter tag to rename", a.out)
		if err != nil {
			return err
		}
		newTag, err := GetSimpleText(a.reader, "Enter new tag name", a.out)
		if err != nil {
			return err
		}
		return a.library.RenameTag(ctx, oldTag, newTag)

	default:
		return fmt.Errorf("unknown library action: %q", action)
	}
}

// Apply layers saved addons onto accounts and reports the per-account
// outcome.
func (a *App) Apply(ctx context.Context) error {
	savedIDs, err := GetSimpleText(a.reader, "Enter saved addon ids, comma separated", a.out)
	if err != nil {
		return err
	}
	accountIDs, err := GetSimpleText(a.reader, "Enter account ids, comma separated (empty = all)", a.out)
	if err != nil {
		return err
	}

	targets := splitList(accountIDs)
	if len(targets) == 0 {
		for _, acc := range a.accounts.Accounts() {
			targets = append(targets, acc.ID)
		}
	}

	result := a.library.ApplyToAccounts(ctx, a.accounts, splitList(savedIDs), targets)
	for id, res := range result.PerAccount {
		fmt.Fprintf(a.out, "%s: added=%d updated=%d skipped=%d protected=%d\n",
			id, res.Added, res.Updated, res.Skipped, res.Protected)
	}
	for id, msg := range result.Errors {
		fmt.Fprintf(a.out, "%s: failed: %s\n", id, msg)
	}
	return nil
}

func (a *App) Rules(ctx context.Context) error {
	action, err := GetSimpleText(a.reader, "Rules action: list / set / delete", a.out)
	if err != nil {
		return err
	}

	switch action {
	case "list", "":
		for _, rule := range a.engine.Rules() {
			fmt.Fprintf(a.out, "%s  account=%s status=%s active=%s chain=%s\n",
				rule.ID, rule.AccountID, rule.Status(), rule.ActiveURL, strings.Join(rule.PriorityChain, " > "))
		}
		return nil

	case "set":
		id, err := GetSimpleText(a.reader, "Enter rule id (empty for a new rule)", a.out)
		if err != nil {
			return err
		}
		accountID, err := GetSimpleText(a.reader, "Enter account id", a.out)
		if err != nil {
			return err
		}
		chain, err := GetSimpleText(a.reader, "Enter priority chain URLs, comma separated", a.out)
		if err != nil {
			return err
		}
		rule, err := a.engine.SetRule(ctx, models.FailoverRule{
			ID:            id,
			AccountID:     accountID,
			PriorityChain: splitList(chain),
			IsActive:      true,
			IsAutomatic:   true,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Rule %s saved.\n", rule.ID)
		return nil

	case "delete":
		id, err := GetSimpleText(a.reader, "Enter rule id", a.out)
		if err != nil {
			return err
		}
		return a.engine.DeleteRule(ctx, id)

	default:
		return fmt.Errorf("unknown rules action: %q", action)
	}
}

func (a *App) Export(ctx context.Context) error {
	path, err := GetSimpleText(a.reader, "Enter output file path", a.out)
	if err != nil {
		return err
	}

	var webhook *models.WebhookConfig
	if data, err := a.repo.Get(ctx, common.KeyWebhookConfig); err == nil && data != nil {
		var cfg models.WebhookConfig
		if json.Unmarshal(data, &cfg) == nil {
			webhook = &cfg
		}
	}

	doc := export.Export(a.accounts.Export(), a.library.Export(), a.engine.Export(), webhook)
	data, err := export.Marshal(doc)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Exported to %s.\n", path)
	return nil
}

func (a *App) Import(ctx context.Context) error {
	path, err := GetSimpleText(a.reader, "Enter input file path", a.out)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	result, err := export.Import(data)
	if err != nil {
		return err
	}

	if len(result.Accounts) > 0 {
		if err := a.accounts.Import(ctx, result.Accounts, false); err != nil {
			return err
		}
	}
	if len(result.Library) > 0 {
		if err := a.library.Import(ctx, result.Library, false); err != nil {
			return err
		}
	}
	if len(result.Rules) > 0 {
		if err := a.engine.Import(ctx, result.Rules, false); err != nil {
			return err
		}
	}
	if result.Webhook != nil {
		data, err := json.Marshal(result.Webhook)
		if err == nil {
			err = a.repo.Set(ctx, common.KeyWebhookConfig, data)
		}
		if err != nil {
			return err
		}
	}

	fmt.Fprintf(a.out, "Imported %d accounts, %d saved addons, %d rules (%d entries skipped).\n",
		len(result.Accounts), len(result.Library), len(result.Rules), result.Skipped)
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
