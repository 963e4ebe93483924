package database

const schema = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	applied_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS user (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL,
	hashed_password TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'member' CHECK (role IN ('member', 'admin')),
	avatar_url TEXT,
	referred_by INTEGER,
	FOREIGN KEY (referred_by) REFERENCES user(id) ON DELETE SET NULL
);
CREATE TABLE IF NOT EXISTS post (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	content TEXT,
	created_at DATETIME NOT NULL,
	is_gift BOOLEAN NOT NULL DEFAULT 0,
	is_opened BOOLEAN NOT NULL DEFAULT 1,
	author_id INTEGER NOT NULL,
	FOREIGN KEY (author_id) REFERENCES user(id) ON DELETE CASCADE
);
CREATE TABLE IF NOT EXISTS post_image (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	url TEXT NOT NULL,
	post_id INTEGER NOT NULL,
	FOREIGN KEY (post_id) REFERENCES post(id) ON DELETE CASCADE
);
CREATE TABLE IF NOT EXISTS comment (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	content TEXT NOT NULL CHECK (length(content) >= 1),
	created_at DATETIME NOT NULL,
	post_id INTEGER NOT NULL,
	author_id INTEGER NOT NULL,
	FOREIGN KEY (post_id) REFERENCES post(id) ON DELETE CASCADE,
	FOREIGN KEY (author_id) REFERENCES user(id) ON DELETE CASCADE
);
-- A like is pure association; its existence is the state.
CREATE TABLE IF NOT EXISTS post_like (
	user_id INTEGER NOT NULL,
	post_id INTEGER NOT NULL,
	PRIMARY KEY (user_id, post_id),
	FOREIGN KEY (user_id) REFERENCES user(id) ON DELETE CASCADE,
	FOREIGN KEY (post_id) REFERENCES post(id) ON DELETE CASCADE
);

-- --- INDEXES ---
CREATE INDEX IF NOT EXISTS idx_post_created ON post(created_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_post_author ON post(author_id);
CREATE INDEX IF NOT EXISTS idx_post_image_post ON post_image(post_id);
CREATE INDEX IF NOT EXISTS idx_comment_post ON comment(post_id);
CREATE INDEX IF NOT EXISTS idx_post_like_post ON post_like(post_id);
`
