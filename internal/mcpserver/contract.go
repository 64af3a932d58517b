package mcpserver

// GradingRules explains how submissions are matched and scored, for
// clients that inspect results through this server.
const GradingRules = `# Grading rules

## File names

Reference images are named ` + "`hw_<homework>_<problem>_<tag>.<ext>`" + `, for
example ` + "`hw_1_6_alpha_circles.png`" + `. The tag may contain underscores.
A submission is the file with exactly the same name anywhere in the
student's folder. Folders named .git, handouts and __MACOSX, and the
error-image cache folder, are never searched.

When no file has the exact name, configured alias names are tried in order.
Two or more files with the same name are ambiguous and never compared.

## Comparison

Both images must have the same height, width and channel count. The score
of an image is the largest absolute per-channel intensity difference
between reference and submission.

## Scoring

- A student with any missing, ambiguous, wrongly sized or unreadable image
  is incomplete and receives no points for any problem.
- Otherwise a problem passes when every one of its reference images has a
  max abs error strictly below the tolerance (default 1).
`
