package config

import "fmt"

// Parser is a recursive-descent parser with a one-token lookahead:
// curTok holds the token just consumed, nextTok the lookahead, and
// comments are swallowed transparently as the lookahead advances.
type Parser struct {
	lex     *Lexer
	curTok  Token
	nextTok Token
}

// Parse lexes and parses src into a Config tree.
func Parse(src string) (*Config, error) {
	p := &Parser{lex: NewLexer(src)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p.parseListDecl(NewConfig())
}

// advance pulls the next token into nextTok, skipping comments.
func (p *Parser) advance() error {
	p.curTok = p.nextTok
	for {
		tok, err := p.lex.Next()
		if err != nil {
			return err
		}
		if tok.Type == TokComment {
			continue
		}
		p.nextTok = tok
		return nil
	}
}

// eat consumes nextTok into curTok if it matches tt, returning whether
// it matched.
func (p *Parser) eat(tt TokenType) (bool, error) {
	if p.nextTok.Type == tt {
		if err := p.advance(); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// failAt builds a ParseError pointing at tok.
func (p *Parser) failAt(tok Token, msg string) *ParseError {
	return &ParseError{
		Line:  tok.Line,
		Col:   tok.Col,
		Text:  tok.Text,
		Token: tok.Val,
		Msg:   msg,
	}
}

func (p *Parser) failNext(msg string) error {
	return p.failAt(p.nextTok, msg)
}

func (p *Parser) eatOrFail(tt TokenType, msg string) (string, error) {
	ok, err := p.eat(tt)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", p.failNext(msg)
	}
	return p.curTok.Val, nil
}

func (p *Parser) expectIdentifier(ident, msg string) error {
	if msg == "" {
		msg = fmt.Sprintf("Expected %s", ident)
	}
	if _, err := p.eatOrFail(TokIdentifier, msg); err != nil {
		return err
	}
	if p.curTok.Val != ident {
		return p.failAt(p.curTok, msg)
	}
	return nil
}

func (p *Parser) parseIdentifierOneOf(valid []string) (string, error) {
	msg := fmt.Sprintf("Expected one of %v", valid)
	val, err := p.eatOrFail(TokIdentifier, msg)
	if err != nil {
		return "", err
	}
	for _, v := range valid {
		if v == val {
			return val, nil
		}
	}
	return "", p.failAt(p.curTok, msg)
}

func (p *Parser) parseStringOneOf(valid []string) (string, error) {
	msg := fmt.Sprintf("Expected one of %v", valid)
	val, err := p.eatOrFail(TokString, msg)
	if err != nil {
		return "", err
	}
	for _, v := range valid {
		if v == val {
			return val, nil
		}
	}
	return "", p.failAt(p.curTok, msg)
}

func (p *Parser) parseStringOrFail() (string, error) {
	return p.eatOrFail(TokString, "Expected string literal")
}

var cmdAttributes = map[string]bool{
	"exec": true, "host": true, "nickname": true, "auto_respawn": true, "group": true,
}

func (p *Parser) parseCommandParamList(cmd *Cmd) error {
	ok, err := p.eat(TokIdentifier)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	attrName := p.curTok.Val
	if !cmdAttributes[attrName] {
		return p.failAt(p.curTok, fmt.Sprintf("Unrecognized attribute %s", attrName))
	}
	if _, err := p.eatOrFail(TokAssign, "Expected '='"); err != nil {
		return err
	}
	attrVal, err := p.parseStringOrFail()
	if err != nil {
		return err
	}
	if _, err := p.eatOrFail(TokSemicolon, "Expected ';'"); err != nil {
		return err
	}

	switch attrName {
	case "exec":
		cmd.Exec = attrVal
	case "host":
		cmd.Host = attrVal
	case "nickname":
		if cmd.Nickname != "" {
			return p.failAt(p.curTok, fmt.Sprintf("Command already has a nickname %s", cmd.Nickname))
		}
		cmd.Nickname = attrVal
	case "group":
		cmd.Group = attrVal
	case "auto_respawn":
		v := attrVal
		cmd.AutoRespawn = v == "true" || v == "yes"
	}

	return p.parseCommandParamList(cmd)
}

func (p *Parser) parseCommand() (*Cmd, error) {
	cmd := &Cmd{}
	ok, err := p.eat(TokString)
	if err != nil {
		return nil, err
	}
	if ok {
		cmd.Nickname = p.curTok.Val
	}
	if _, err := p.eatOrFail(TokOpenBrace, "Expected '{'"); err != nil {
		return nil, err
	}
	if err := p.parseCommandParamList(cmd); err != nil {
		return nil, err
	}
	if _, err := p.eatOrFail(TokCloseBrace, "Expected '}'"); err != nil {
		return nil, err
	}
	if cmd.Exec == "" {
		return nil, p.failAt(p.curTok, "Invalid command defined -- no executable specified")
	}
	if cmd.Host == "" {
		return nil, p.failAt(p.curTok, "Invalid command defined -- no host specified")
	}
	return cmd, nil
}

func (p *Parser) parseCommandList() ([]*Cmd, error) {
	var cmds []*Cmd
	for {
		ok, err := p.eat(TokIdentifier)
		if err != nil {
			return nil, err
		}
		if !ok || p.curTok.Val != "cmd" {
			break
		}
		cmd, err := p.parseCommand()
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}

func (p *Parser) parseGroup() (*Group, error) {
	name, err := p.eatOrFail(TokString, "Expected group name string")
	if err != nil {
		return nil, err
	}
	group := &Group{Name: name}
	if _, err := p.eatOrFail(TokOpenBrace, "Expected '{'"); err != nil {
		return nil, err
	}
	cmds, err := p.parseCommandList()
	if err != nil {
		return nil, err
	}
	for _, c := range cmds {
		c.Group = name
		group.Commands = append(group.Commands, c)
	}
	if _, err := p.eatOrFail(TokCloseBrace, "Expected '}'"); err != nil {
		return nil, err
	}
	return group, nil
}

var identTypes = []string{string(IdentEverything), string(IdentCmd), string(IdentGroup)}

func (p *Parser) parseStartStopRestartAction(actionType ActionType) (Action, error) {
	identType, err := p.parseIdentifierOneOf(identTypes)
	if err != nil {
		return Action{}, err
	}
	a := Action{Type: actionType, IdentType: IdentType(identType)}
	if identType != string(IdentEverything) {
		ident, err := p.parseStringOrFail()
		if err != nil {
			return Action{}, err
		}
		a.Ident = ident
	}
	ok, err := p.eat(TokSemicolon)
	if err != nil {
		return Action{}, err
	}
	if ok {
		return a, nil
	}
	if err := p.expectIdentifier("wait", "Expected ';' or 'wait'"); err != nil {
		return Action{}, err
	}
	ws, err := p.parseStringOneOf([]string{string(WaitRunning), string(WaitStopped)})
	if err != nil {
		return Action{}, err
	}
	a.WaitStatus = WaitStatus(ws)
	if _, err := p.eatOrFail(TokSemicolon, "Expected ';'"); err != nil {
		return Action{}, err
	}
	return a, nil
}

func (p *Parser) parseWaitAction() (Action, error) {
	waitType, err := p.parseIdentifierOneOf([]string{"ms", "cmd", "group"})
	if err != nil {
		return Action{}, err
	}
	if waitType == "ms" {
		delayStr, err := p.eatOrFail(TokInteger, "Expected integer constant")
		if err != nil {
			return Action{}, err
		}
		if _, err := p.eatOrFail(TokSemicolon, "Expected ';'"); err != nil {
			return Action{}, err
		}
		var delay int
		if _, err := fmt.Sscanf(delayStr, "%d", &delay); err != nil {
			return Action{}, p.failAt(p.curTok, "Invalid integer constant")
		}
		return Action{Type: ActionWaitMs, DelayMs: delay}, nil
	}

	ident, err := p.parseStringOrFail()
	if err != nil {
		return Action{}, err
	}
	if err := p.expectIdentifier("status", ""); err != nil {
		return Action{}, err
	}
	ws, err := p.parseStringOneOf([]string{string(WaitRunning), string(WaitStopped)})
	if err != nil {
		return Action{}, err
	}
	if _, err := p.eatOrFail(TokSemicolon, "Expected ';'"); err != nil {
		return Action{}, err
	}
	return Action{Type: ActionWaitStatus, IdentType: IdentType(waitType), Ident: ident, WaitStatus: WaitStatus(ws)}, nil
}

func (p *Parser) parseRunScript() (Action, error) {
	name, err := p.eatOrFail(TokString, "expected script name")
	if err != nil {
		return Action{}, err
	}
	if _, err := p.eatOrFail(TokSemicolon, "Expected ';'"); err != nil {
		return Action{}, err
	}
	return Action{Type: ActionRunScript, ScriptName: name}, nil
}

func (p *Parser) parseScriptActionList() ([]Action, error) {
	if _, err := p.eatOrFail(TokOpenBrace, "Expected '{'"); err != nil {
		return nil, err
	}
	var actions []Action
	for {
		ok, err := p.eat(TokIdentifier)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		actionType := p.curTok.Val
		var a Action
		switch actionType {
		case "start", "stop", "restart":
			a, err = p.parseStartStopRestartAction(ActionType(actionType))
		case "wait":
			a, err = p.parseWaitAction()
		case "run_script":
			a, err = p.parseRunScript()
		default:
			return nil, p.failAt(p.curTok, fmt.Sprintf("Unexpected token %s", actionType))
		}
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	if _, err := p.eatOrFail(TokCloseBrace, "Unexpected token"); err != nil {
		return nil, err
	}
	return actions, nil
}

func (p *Parser) parseScript() (*Script, error) {
	name, err := p.eatOrFail(TokString, "expected script name")
	if err != nil {
		return nil, err
	}
	actions, err := p.parseScriptActionList()
	if err != nil {
		return nil, err
	}
	return &Script{Name: name, Actions: actions}, nil
}

func (p *Parser) parseListDecl(cfg *Config) (*Config, error) {
	for {
		ok, err := p.eat(TokEOF)
		if err != nil {
			return nil, err
		}
		if ok {
			return cfg, nil
		}

		ok, err = p.eat(TokIdentifier)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, p.failNext("Expected 'cmd', 'group', or 'script'")
		}
		switch p.curTok.Val {
		case "cmd":
			cmd, err := p.parseCommand()
			if err != nil {
				return nil, err
			}
			cfg.AddCommand(cmd)
		case "group":
			group, err := p.parseGroup()
			if err != nil {
				return nil, err
			}
			if group.Name == "" {
				// group "" is synonymous with top level.
				for _, c := range group.Commands {
					cfg.AddCommand(c)
				}
				continue
			}
			if cfg.HasGroup(group.Name) {
				return nil, p.failAt(p.curTok, fmt.Sprintf("Duplicate group %q", group.Name))
			}
			cfg.AddGroup(group)
		case "script":
			script, err := p.parseScript()
			if err != nil {
				return nil, err
			}
			if _, exists := cfg.Scripts[script.Name]; exists {
				return nil, p.failAt(p.curTok, fmt.Sprintf("Duplicate script %q", script.Name))
			}
			cfg.AddScript(script)
		default:
			return nil, p.failAt(p.curTok, "Expected 'cmd', 'group', or 'script'")
		}
	}
}
