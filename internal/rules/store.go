package rules

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"logsentry/internal/model"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

var (
	ErrRuleNotFound  = errors.New("rule not found")
	ErrDuplicateRule = errors.New("rule name already exists")
	ErrInvalidRule   = errors.New("invalid rule")
	ErrNoRulesFile   = errors.New("no rules file loaded")
)

// StatePurger drops correlation state owned by a rule name.
type StatePurger interface {
	Purge(rule string) int
}

type RuleStats struct {
	Total   int `json:"total_rules"`
	Enabled int `json:"enabled_rules"`
}

// Store holds the rule set. Readers get snapshots of immutable compiled
// rules so mutations never race with an in-flight Check.
type Store struct {
	mu           sync.RWMutex
	rules        []*compiledRule
	epochs       map[string]uint64
	epochSeq     uint64
	source       string
	state        StatePurger
	validate     *validator.Validate
	regexTimeout time.Duration
	logger       *logrus.Logger
}

type StoreOption func(*Store)

func WithRegexTimeout(d time.Duration) StoreOption {
	return func(s *Store) {
		s.regexTimeout = d
	}
}

func NewStore(state StatePurger, logger *logrus.Logger, opts ...StoreOption) *Store {
	s := &Store{
		rules:        make([]*compiledRule, 0),
		epochs:       make(map[string]uint64),
		state:        state,
		validate:     validator.New(),
		regexTimeout: DefaultRegexTimeout,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the rule set with the document read from r. A document that
// cannot be parsed leaves the store empty and returns the parse error.
func (s *Store) Load(r io.Reader) ([]model.Rule, error) {
	inputs, err := ReadRules(r)
	if err != nil {
		s.replace(nil)
		return nil, err
	}
	return s.replace(inputs), nil
}

// LoadFile loads rules from a YAML or JSON file and remembers the path for Reload.
// A file that cannot be read keeps the current set.
func (s *Store) LoadFile(filename string) ([]model.Rule, error) {
	if filename == "" {
		return nil, fmt.Errorf("rules file path is empty")
	}

	s.mu.Lock()
	s.source = filename
	s.mu.Unlock()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	inputs, err := ParseRules(filename, data)
	if err != nil {
		s.replace(nil)
		return nil, err
	}
	return s.replace(inputs), nil
}

// Reload re-reads the last file passed to LoadFile.
func (s *Store) Reload() ([]model.Rule, error) {
	s.mu.RLock()
	source := s.source
	s.mu.RUnlock()

	if source == "" {
		return nil, ErrNoRulesFile
	}
	return s.LoadFile(source)
}

func (s *Store) replace(inputs []model.RuleInput) []model.Rule {
	s.mu.Lock()

	prevEpochs := s.epochs
	s.epochs = make(map[string]uint64, len(inputs))

	compiled := make([]*compiledRule, 0, len(inputs))
	for i, in := range inputs {
		in.Normalize()
		rule := in.ToRule()
		rule.ID = i + 1

		var loadErr error
		if err := s.validate.Struct(in); err != nil {
			loadErr = err
		}
		if _, dup := s.epochs[rule.Name]; dup && loadErr == nil {
			loadErr = fmt.Errorf("%w: %s", ErrDuplicateRule, rule.Name)
		}

		epoch, ok := s.epochs[rule.Name]
		if !ok {
			if epoch, ok = prevEpochs[rule.Name]; !ok {
				epoch = s.nextEpoch()
			}
			s.epochs[rule.Name] = epoch
		}

		cr, err := compileRule(rule, epoch, s.regexTimeout)
		if loadErr == nil {
			loadErr = err
		}
		if loadErr != nil {
			cr.rule.Enabled = false
			cr.rule.LoadError = loadErr.Error()
			s.logger.WithFields(logrus.Fields{
				"rule":  rule.Name,
				"index": i,
			}).Warnf("Disabling rule: %v", loadErr)
		}
		compiled = append(compiled, cr)
	}
	s.rules = compiled

	var vanished []string
	for name := range prevEpochs {
		if _, ok := s.epochs[name]; !ok {
			vanished = append(vanished, name)
		}
	}
	out := s.snapshotLocked()
	s.mu.Unlock()

	for _, name := range vanished {
		s.purge(name)
	}

	s.logger.Infof("Loaded %d rules (%d enabled)", len(out), countEnabled(out))
	return out
}

// GetAll returns every rule in store order, including disabled ones.
func (s *Store) GetAll() []model.Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) Get(id int) (model.Rule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexLocked(id); i >= 0 {
		return s.rules[i].rule, true
	}
	return model.Rule{}, false
}

// active returns the enabled rules in store order.
func (s *Store) active() []*compiledRule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := make([]*compiledRule, 0, len(s.rules))
	for _, cr := range s.rules {
		if cr.rule.Enabled {
			active = append(active, cr)
		}
	}
	return active
}

func (s *Store) Add(in model.RuleInput) (model.Rule, error) {
	in.Normalize()
	if err := s.validate.Struct(in); err != nil {
		return model.Rule{}, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	rule := in.ToRule()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nameTakenLocked(rule.Name, -1) {
		return model.Rule{}, fmt.Errorf("%w: %s", ErrDuplicateRule, rule.Name)
	}

	rule.ID = s.maxIDLocked() + 1
	epoch := s.nextEpoch()
	cr, err := compileRule(rule, epoch, s.regexTimeout)
	if err != nil {
		return model.Rule{}, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	s.epochs[rule.Name] = epoch
	s.rules = append(s.rules, cr)
	s.logger.Infof("Added rule %d: %s", rule.ID, rule.Name)
	return cr.rule, nil
}

// Update applies a partial update. Renaming a rule discards the correlation
// state of its old name.
func (s *Store) Update(id int, patch model.RulePatch) (model.Rule, error) {
	patch.Normalize()
	if err := s.validate.Struct(patch); err != nil {
		return model.Rule{}, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	s.mu.Lock()

	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return model.Rule{}, ErrRuleNotFound
	}
	old := s.rules[i]
	updated := patch.Apply(old.rule)
	updated.LoadError = ""

	if updated.Name == "" {
		s.mu.Unlock()
		return model.Rule{}, fmt.Errorf("%w: rule_name is required", ErrInvalidRule)
	}
	if updated.Severity.Rank() == 0 {
		s.mu.Unlock()
		return model.Rule{}, fmt.Errorf("%w: unknown severity %q", ErrInvalidRule, updated.Severity)
	}
	renamed := updated.Name != old.rule.Name
	if renamed && s.nameTakenLocked(updated.Name, id) {
		s.mu.Unlock()
		return model.Rule{}, fmt.Errorf("%w: %s", ErrDuplicateRule, updated.Name)
	}

	epoch := old.epoch
	if renamed {
		epoch = s.nextEpoch()
	}
	cr, err := compileRule(updated, epoch, s.regexTimeout)
	if err != nil {
		s.mu.Unlock()
		return model.Rule{}, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	if renamed {
		delete(s.epochs, old.rule.Name)
		s.epochs[updated.Name] = epoch
	}
	s.rules[i] = cr
	s.mu.Unlock()

	if renamed {
		s.purge(old.rule.Name)
	}
	s.logger.Infof("Updated rule %d: %s", id, updated.Name)
	return cr.rule, nil
}

// Delete removes the rule and purges its correlation state.
func (s *Store) Delete(id int) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	name := s.rules[i].rule.Name
	s.rules = append(s.rules[:i:i], s.rules[i+1:]...)
	delete(s.epochs, name)
	s.mu.Unlock()

	s.purge(name)
	s.logger.Infof("Deleted rule %d: %s", id, name)
	return true
}

func (s *Store) Stats() RuleStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := RuleStats{Total: len(s.rules)}
	for _, cr := range s.rules {
		if cr.rule.Enabled {
			stats.Enabled++
		}
	}
	return stats
}

func (s *Store) purge(name string) {
	if s.state == nil {
		return
	}
	if n := s.state.Purge(name); n > 0 {
		s.logger.Debugf("Purged %d correlation buckets for rule %s", n, name)
	}
}

func (s *Store) nextEpoch() uint64 {
	s.epochSeq++
	return s.epochSeq
}

func (s *Store) snapshotLocked() []model.Rule {
	out := make([]model.Rule, len(s.rules))
	for i, cr := range s.rules {
		out[i] = cr.rule
	}
	return out
}

func (s *Store) indexLocked(id int) int {
	for i, cr := range s.rules {
		if cr.rule.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) nameTakenLocked(name string, exceptID int) bool {
	for _, cr := range s.rules {
		if cr.rule.Name == name && cr.rule.ID != exceptID {
			return true
		}
	}
	return false
}

func (s *Store) maxIDLocked() int {
	max := 0
	for _, cr := range s.rules {
		if cr.rule.ID > max {
			max = cr.rule.ID
		}
	}
	return max
}

func countEnabled(rules []model.Rule) int {
	n := 0
	for _, r := range rules {
		if r.Enabled {
			n++
		}
	}
	return n
}
