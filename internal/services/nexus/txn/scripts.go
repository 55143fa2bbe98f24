package txn

import "github.com/redis/go-redis/v9"

// Script replies that are not values.
const (
	replyNotFound          = "NOT_FOUND"
	replyInsufficientFunds = "INSUFFICIENT_FUNDS"
	replyInvalidAmount     = "INVALID_AMOUNT"
	replyCreated           = "CREATED"
	replyUpdated           = "UPDATED"
	replyOK                = "OK"
)

// luaPrelude is prepended to every script. Records decode with a metadata
// table even when the stored blob lacks one.
const luaPrelude = `
local function decode_record(raw)
  local obj = cjson.decode(raw)
  if type(obj.metadata) ~= 'table' then obj.metadata = {} end
  return obj
end

local function read_number(obj, field)
  return tonumber(obj.metadata[field] or '0') or 0
end

local function canonical(n)
  if n == 0 then return '0' end
  if n == math.floor(n) then return string.format('%.0f', n) end
  local s = string.format('%.10f', n)
  s = string.gsub(s, '0+$', '')
  s = string.gsub(s, '%.$', '')
  return s
end

local function name_of(obj)
  if type(obj.lastSeenName) == 'string' then return obj.lastSeenName end
  return ''
end

local function rank(board, members, id, name, score)
  if name == '' then return end
  local member = name .. '|' .. id
  local previous = redis.call('HGET', members, id)
  if previous and previous ~= member then
    redis.call('ZREM', board, previous)
  end
  redis.call('ZADD', board, score, member)
  redis.call('HSET', members, id, member)
end

local function record_history(key, kind, amount, other, ts, reason)
  if reason == nil or reason == '' then reason = 'SYSTEM' end
  local entry = cjson.encode({type = kind, amount = amount, otherPlayer = other, timestamp = ts, reason = reason})
  redis.call('LPUSH', key, entry)
  redis.call('LTRIM', key, 0, 49)
end

local function notify(id, balance, source, kind)
  local update = cjson.encode({playerUuid = id, newBalance = balance, serverSource = source, transactionType = kind})
  redis.call('PUBLISH', 'autonexus:updates', update)
end

local function replay(token_key)
  if token_key then
    local prior = redis.call('GET', token_key)
    if prior then return prior end
  end
  return nil
end

local function remember(token_key, result)
  if token_key then redis.call('SET', token_key, result, 'EX', 300) end
  return result
end
`

// KEYS: player, name index, legacy name index
// ARGV: uuid, name, server
const upsertLocationSource = luaPrelude + `
local raw = redis.call('GET', KEYS[1])
local obj
if raw then
  obj = decode_record(raw)
else
  obj = {uuid = ARGV[1], metadata = {}}
end
obj.lastSeenName = ARGV[2]
obj.currentServer = ARGV[3]
redis.call('SET', KEYS[1], cjson.encode(obj))
if ARGV[2] ~= '' then
  redis.call('SET', KEYS[2], ARGV[1])
  redis.call('SET', KEYS[3], ARGV[1])
end
if raw then return 'UPDATED' end
return 'CREATED'
`

// KEYS: player
// ARGV: json object of field updates
const mergeMetadataSource = luaPrelude + `
local raw = redis.call('GET', KEYS[1])
if not raw then return 'NOT_FOUND' end
local obj = decode_record(raw)
local updates = cjson.decode(ARGV[1])
for k, v in pairs(updates) do
  obj.metadata[k] = v
end
redis.call('SET', KEYS[1], cjson.encode(obj))
return 'OK'
`

// KEYS: player, history, leaderboard, leaderboard members, [idempotency]
// ARGV: field, delta, is balance, source, tx type, counterparty, uuid, timestamp, reason
const incrementFieldSource = luaPrelude + `
local prior = replay(KEYS[5])
if prior then return prior end
local raw = redis.call('GET', KEYS[1])
if not raw then return 'NOT_FOUND' end
local obj = decode_record(raw)
local field = ARGV[1]
local delta = tonumber(ARGV[2])
local newval = read_number(obj, field) + delta
if delta < 0 and newval < 0 then return 'INSUFFICIENT_FUNDS' end
obj.metadata[field] = canonical(newval)
redis.call('SET', KEYS[1], cjson.encode(obj))
if ARGV[3] == '1' and delta ~= 0 then
  record_history(KEYS[2], ARGV[5], delta, ARGV[6], ARGV[8], ARGV[9])
  rank(KEYS[3], KEYS[4], ARGV[7], name_of(obj), newval)
  notify(ARGV[7], canonical(newval), ARGV[4], ARGV[5])
end
return remember(KEYS[5], canonical(newval))
`

// KEYS: from, to, from history, to history, leaderboard, leaderboard members, [idempotency]
// ARGV: field, amount, is balance, source, from uuid, to uuid, timestamp, reason
const transferFieldSource = luaPrelude + `
local prior = replay(KEYS[7])
if prior then return prior end
local amount = tonumber(ARGV[2])
if not amount or amount <= 0 then return 'INVALID_AMOUNT' end
local from_raw = redis.call('GET', KEYS[1])
if not from_raw then return 'INSUFFICIENT_FUNDS' end
local from = decode_record(from_raw)
local to_raw = redis.call('GET', KEYS[2])
local to
if to_raw then
  to = decode_record(to_raw)
else
  to = {uuid = ARGV[6], currentServer = 'offline', metadata = {}}
end
local field = ARGV[1]
local new_from = read_number(from, field) - amount
if new_from < 0 then return 'INSUFFICIENT_FUNDS' end
local new_to = read_number(to, field) + amount
from.metadata[field] = canonical(new_from)
to.metadata[field] = canonical(new_to)
redis.call('SET', KEYS[1], cjson.encode(from))
redis.call('SET', KEYS[2], cjson.encode(to))
if ARGV[3] == '1' then
  record_history(KEYS[3], 'DEBIT', -amount, ARGV[6], ARGV[7], ARGV[8])
  record_history(KEYS[4], 'CREDIT', amount, ARGV[5], ARGV[7], ARGV[8])
  rank(KEYS[5], KEYS[6], ARGV[5], name_of(from), new_from)
  rank(KEYS[5], KEYS[6], ARGV[6], name_of(to), new_to)
  notify(ARGV[5], canonical(new_from), ARGV[4], 'DEBIT')
  notify(ARGV[6], canonical(new_to), ARGV[4], 'CREDIT')
end
return remember(KEYS[7], canonical(new_from))
`

// KEYS: leaderboard, leaderboard members
// ARGV: uuid, name, score
const rankSource = luaPrelude + `
rank(KEYS[1], KEYS[2], ARGV[1], ARGV[2], tonumber(ARGV[3]) or 0)
return 'OK'
`

// KEYS: leaderboard, leaderboard members
// ARGV: uuid
const unrankSource = `
local member = redis.call('HGET', KEYS[2], ARGV[1])
if not member then return 0 end
redis.call('ZREM', KEYS[1], member)
redis.call('HDEL', KEYS[2], ARGV[1])
return 1
`

var (
	upsertLocationScript = redis.NewScript(upsertLocationSource)
	mergeMetadataScript  = redis.NewScript(mergeMetadataSource)
	incrementFieldScript = redis.NewScript(incrementFieldSource)
	transferFieldScript  = redis.NewScript(transferFieldSource)
	rankScript           = redis.NewScript(rankSource)
	unrankScript         = redis.NewScript(unrankSource)
)
