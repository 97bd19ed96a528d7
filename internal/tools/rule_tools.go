package tools

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/nugget/assistente/internal/store"
)

// PreferredNameKey is the reserved rule key that sets how the assistant
// addresses the user. It is stored in settings, not as a rule.
const PreferredNameKey = "preferred_name"

var ruleActions = []string{"create", "list", "delete"}

func (r *Registry) registerRuleTools() {
	r.Register(&Tool{
		Name: "manage_rules",
		Description: "Create, list or delete standing rules the user wants you to follow (tone, formats, habits). " +
			"Creating a rule with an existing key replaces it. Use key \"" + PreferredNameKey + "\" to set how to address the user.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"action": map[string]any{
					"type": "string",
					"enum": ruleActions,
				},
				"key": map[string]any{
					"type":        "string",
					"description": "Short identifier of the rule, e.g. currency_format. Derived from content when omitted",
				},
				"content": map[string]any{
					"type":        "string",
					"description": "The rule itself, or the name when key is " + PreferredNameKey,
				},
			},
			"required": []string{"action"},
		},
		Handler: r.handleManageRules,
	})
}

func (r *Registry) handleManageRules(ctx context.Context, args map[string]any) (string, error) {
	const tool = "manage_rules"
	req, err := requestFor(ctx, tool)
	if err != nil {
		return "", err
	}

	v := newValidator(tool)
	if !present(args, "action") {
		v.missing("action")
	}
	action := enumArg(v, args, "action", ruleActions, "")
	key := ruleKey(stringArg(args, "key"))
	switch action {
	case "create":
		if c := requireString(v, args, "content"); c != "" && key == "" && ruleKey(c) == "" {
			v.invalid("content", "must contain letters or digits")
		}
	case "delete":
		if key == "" {
			v.missing("key")
		}
	}
	if err := v.result(); err != nil {
		return "", err
	}
	rs := r.deps.Rules
	content := stringArg(args, "content")

	switch action {
	case "create":
		if key == PreferredNameKey {
			st, err := rs.GetSettings(ctx, req.UserID)
			if err != nil {
				return "", execErr(tool, "settings", err)
			}
			st.PreferredName = content
			if err := rs.SaveSettings(ctx, st); err != nil {
				return "", execErr(tool, "settings", err)
			}
			return fmt.Sprintf("From now on the user is called %q.", content), nil
		}
		if key == "" {
			key = derivedRuleKey(content)
		}
		rule := &store.Rule{UserID: req.UserID, Key: key, Content: content}
		created, err := rs.UpsertRule(ctx, rule)
		if err != nil {
			return "", execErr(tool, "upsert", err)
		}
		if created {
			return fmt.Sprintf("Rule %q saved: %s", key, content), nil
		}
		return fmt.Sprintf("Rule %q replaced: %s", key, content), nil

	case "delete":
		if key == PreferredNameKey {
			st, err := rs.GetSettings(ctx, req.UserID)
			if err != nil {
				return "", execErr(tool, "settings", err)
			}
			st.PreferredName = ""
			if err := rs.SaveSettings(ctx, st); err != nil {
				return "", execErr(tool, "settings", err)
			}
			return "Preferred name cleared.", nil
		}
		err := rs.DeleteRule(ctx, req.UserID, key)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Sprintf("No rule with key %q. Nothing was deleted.", key), nil
		}
		if err != nil {
			return "", execErr(tool, "delete", err)
		}
		return fmt.Sprintf("Rule %q deleted.", key), nil
	}

	rules, err := rs.ListRules(ctx, req.UserID)
	if err != nil {
		return "", execErr(tool, "list", err)
	}
	st, err := rs.GetSettings(ctx, req.UserID)
	if err != nil {
		return "", execErr(tool, "settings", err)
	}

	var sb strings.Builder
	if st.PreferredName != "" {
		fmt.Fprintf(&sb, "Preferred name: %s\n", st.PreferredName)
	}
	if len(rules) == 0 {
		sb.WriteString("No rules.")
		return sb.String(), nil
	}
	fmt.Fprintf(&sb, "%d %s:\n", len(rules), plural(len(rules), "rule", "rules"))
	for _, rule := range rules {
		fmt.Fprintf(&sb, "- %s: %s\n", rule.Key, rule.Content)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

const maxRuleKeyWords = 4

var accentFolder = strings.NewReplacer(
	"á", "a", "à", "a", "â", "a", "ã", "a", "ä", "a",
	"é", "e", "è", "e", "ê", "e", "ë", "e",
	"í", "i", "ì", "i", "î", "i", "ï", "i",
	"ó", "o", "ò", "o", "ô", "o", "õ", "o", "ö", "o",
	"ú", "u", "ù", "u", "û", "u", "ü", "u",
	"ç", "c", "ñ", "n",
)

// ruleKey normalizes s into a lower-case, accent-free snake_case key
// built from at most a few words.
func ruleKey(s string) string {
	words := ruleWords(s)
	if len(words) > maxRuleKeyWords {
		words = words[:maxRuleKeyWords]
	}
	return strings.Join(words, "_")
}

// derivedRuleKey keys a rule the user gave no key for: its opening
// words plus a short hash of all its words. Restating the same rule
// keeps the key; rules that share only their opening words do not
// collide.
func derivedRuleKey(content string) string {
	words := ruleWords(content)
	if len(words) == 0 {
		return ""
	}
	h := fnv.New32a()
	h.Write([]byte(strings.Join(words, "_")))
	return fmt.Sprintf("%s_%04x", ruleKey(content), h.Sum32()&0xffff)
}

// ruleWords lower-cases s, folds accents and splits it on anything that
// is not a letter or digit.
func ruleWords(s string) []string {
	s = accentFolder.Replace(strings.ToLower(strings.TrimSpace(s)))
	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for _, c := range s {
		if unicode.IsLetter(c) || unicode.IsDigit(c) {
			cur.WriteRune(c)
			continue
		}
		flush()
	}
	flush()
	return words
}
