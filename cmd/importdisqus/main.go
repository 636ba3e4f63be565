// Command importdisqus loads a Disqus XML export into the database. Threads
// and posts keep their original timestamps and moderation flags; authors are
// deduplicated by username first, e-mail second. Content is sanitized
// synchronously during the import since no worker pool is assumed to run.
package main

import (
	"encoding/xml"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/parley-forum/parley/config"
	"github.com/parley-forum/parley/models"
	"github.com/parley-forum/parley/utils"
)

type export struct {
	XMLName xml.Name    `xml:"disqus"`
	Threads []dsqThread `xml:"thread"`
	Posts   []dsqPost   `xml:"post"`
}

type dsqThread struct {
	ID        string `xml:"http://disqus.com/disqus-internals id,attr"`
	Link      string `xml:"link"`
	Title     string `xml:"title"`
	CreatedAt string `xml:"createdAt"`
	IsClosed  bool   `xml:"isClosed"`
	IsDeleted bool   `xml:"isDeleted"`
}

type dsqAuthor struct {
	Email     string `xml:"email"`
	Name      string `xml:"name"`
	Username  string `xml:"username"`
	Anonymous bool   `xml:"isAnonymous"`
}

type dsqRef struct {
	ID string `xml:"http://disqus.com/disqus-internals id,attr"`
}

type dsqPost struct {
	ID            string    `xml:"http://disqus.com/disqus-internals id,attr"`
	Message       string    `xml:"message"`
	CreatedAt     string    `xml:"createdAt"`
	IsDeleted     bool      `xml:"isDeleted"`
	IsApproved    *bool     `xml:"isApproved"`
	IsFlagged     bool      `xml:"isFlagged"`
	IsSpam        bool      `xml:"isSpam"`
	IsHighlighted bool      `xml:"isHighlighted"`
	Author        dsqAuthor `xml:"author"`
	Thread        *dsqRef   `xml:"thread"`
	Parent        *dsqRef   `xml:"parent"`
}

type importer struct {
	db       *gorm.DB
	category string

	threadIDs map[string]uint // disqus thread id -> row id
	postIDs   map[string]uint // disqus post id -> row id
	userIDs   map[string]uint // dedup key -> row id
}

func main() {
	category := flag.String("category", models.CategoryDiscussion, "category for imported threads")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: importdisqus [-category discussion|request|issue] <disqus-export-file.xml>")
		os.Exit(2)
	}
	if !models.ValidCategory(*category) {
		fmt.Fprintf(os.Stderr, "unknown category %q\n", *category)
		os.Exit(2)
	}

	cfg := config.Load()
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	db := config.InitDatabase(
		&models.User{}, &models.Thread{}, &models.Post{},
		&models.Vote{}, &models.Media{}, &models.Attachment{},
	)

	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		utils.Sugar.Fatalf("reading export: %v", err)
	}
	var exp export
	if err := xml.Unmarshal(data, &exp); err != nil {
		utils.Sugar.Fatalf("parsing export: %v", err)
	}

	imp := &importer{
		db:        db,
		category:  *category,
		threadIDs: map[string]uint{},
		postIDs:   map[string]uint{},
		userIDs:   map[string]uint{},
	}
	if err := imp.run(&exp); err != nil {
		utils.Sugar.Fatalf("import failed: %v", err)
	}
	utils.Sugar.Infof("imported %d threads and %d posts", len(imp.threadIDs), len(imp.postIDs))
}

func (imp *importer) run(exp *export) error {
	return imp.db.Transaction(func(tx *gorm.DB) error {
		for i := range exp.Threads {
			if err := imp.importThread(tx, &exp.Threads[i]); err != nil {
				return err
			}
		}
		return imp.importPosts(tx, exp.Posts)
	})
}

func (imp *importer) importThread(tx *gorm.DB, t *dsqThread) error {
	thread := models.Thread{
		Category:  imp.category,
		CreatedAt: parseDisqusTime(t.CreatedAt),
		IsClosed:  t.IsClosed,
		IsDeleted: t.IsDeleted,
	}
	if err := tx.Create(&thread).Error; err != nil {
		return fmt.Errorf("thread %s: %w", t.ID, err)
	}
	imp.threadIDs[t.ID] = thread.ID
	return nil
}

// importPosts inserts posts parents-first. The export lists posts in
// arbitrary order, so unresolved children are carried into another round
// until a pass makes no progress.
func (imp *importer) importPosts(tx *gorm.DB, posts []dsqPost) error {
	pending := make([]*dsqPost, 0, len(posts))
	for i := range posts {
		pending = append(pending, &posts[i])
	}

	for len(pending) > 0 {
		var next []*dsqPost
		progressed := false
		for _, p := range pending {
			if p.Parent != nil {
				if _, ok := imp.postIDs[p.Parent.ID]; !ok {
					next = append(next, p)
					continue
				}
			}
			if err := imp.importPost(tx, p); err != nil {
				return err
			}
			progressed = true
		}
		if !progressed {
			return fmt.Errorf("%d posts reference parents missing from the export", len(next))
		}
		pending = next
	}
	return nil
}

func (imp *importer) importPost(tx *gorm.DB, p *dsqPost) error {
	if p.Thread == nil {
		return fmt.Errorf("post %s has no thread reference", p.ID)
	}
	threadID, ok := imp.threadIDs[p.Thread.ID]
	if !ok {
		return fmt.Errorf("post %s references unknown thread %s", p.ID, p.Thread.ID)
	}

	authorID, err := imp.resolveAuthor(tx, &p.Author)
	if err != nil {
		return err
	}

	approved := true
	if p.IsApproved != nil {
		approved = *p.IsApproved
	}

	created := parseDisqusTime(p.CreatedAt)
	cleaned := utils.CleanContent(p.Message)
	post := models.Post{
		ThreadID:       threadID,
		AuthorID:       authorID,
		Content:        p.Message,
		ContentCleaned: &cleaned,
		CreatedAt:      created,
		UpdatedAt:      created,
		IsDeleted:      p.IsDeleted,
		IsApproved:     approved,
		IsFlagged:      p.IsFlagged,
		IsSpam:         p.IsSpam,
		IsHighlighted:  p.IsHighlighted,
	}
	if p.Parent != nil {
		parentID := imp.postIDs[p.Parent.ID]
		post.ParentID = &parentID
	}
	if err := tx.Create(&post).Error; err != nil {
		return fmt.Errorf("post %s: %w", p.ID, err)
	}
	imp.postIDs[p.ID] = post.ID
	return nil
}

// resolveAuthor finds or creates the account behind an exported author.
// Username wins as the identity when present, then e-mail; fully anonymous
// authors collapse into one shared account.
func (imp *importer) resolveAuthor(tx *gorm.DB, a *dsqAuthor) (uint, error) {
	username := strings.TrimSpace(a.Username)
	email := strings.TrimSpace(a.Email)

	key := "user:" + username
	if username == "" {
		if email != "" {
			key = "email:" + email
		} else {
			key = "anonymous"
		}
	}
	if id, ok := imp.userIDs[key]; ok {
		return id, nil
	}

	var existing models.User
	var err error
	switch {
	case username != "":
		err = tx.Where("username = ?", username).First(&existing).Error
	case email != "":
		err = tx.Where("email = ?", email).First(&existing).Error
	default:
		err = tx.Where("username = ?", "disqus-anonymous").First(&existing).Error
	}
	if err == nil {
		imp.userIDs[key] = existing.ID
		return existing.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}

	if username == "" {
		if email != "" {
			username = "disqus-" + uuid.NewString()[:8]
		} else {
			username = "disqus-anonymous"
		}
	}
	user := models.User{
		Username:  username,
		Email:     email,
		FirstName: strings.TrimSpace(a.Name),
		Role:      models.RoleUser,
	}
	if err := tx.Create(&user).Error; err != nil {
		return 0, fmt.Errorf("author %s: %w", key, err)
	}
	imp.userIDs[key] = user.ID
	return user.ID, nil
}

// parseDisqusTime accepts the zone-less ISO timestamps Disqus exports use,
// falling back to RFC 3339 and finally to now.
func parseDisqusTime(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02T15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Now()
}
