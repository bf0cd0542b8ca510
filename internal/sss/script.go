package sss

import "github.com/redis/go-redis/v9"

// bidCommitScript is the scripted atomic conditional-update primitive
// required by spec §4.1/§4.2: it is the only read-modify-write path on
// current_high_bid, executed with all-or-nothing semantics relative to any
// other mutator on the same key. Adapted from the original system's
// BID_COMPARISON_SCRIPT (shared/redis_client/client.go), extended to also
// bump bid_count atomically in the same script (spec §9 open question:
// "pick the Lua path, remove the duplicate application-code increment").
var bidCommitScript = redis.NewScript(`
local state_key = KEYS[1]
local amount = tonumber(ARGV[1])
local user_id = ARGV[2]
local username = ARGV[3]
local timestamp_ms = ARGV[4]

local current_high = tonumber(redis.call('HGET', state_key, 'current_high_bid') or '0')

if amount > current_high then
    redis.call('HSET', state_key,
        'current_high_bid', tostring(amount),
        'high_bidder_id', user_id,
        'high_bidder_username', username,
        'last_bid_time_ms', timestamp_ms
    )
    redis.call('HINCRBY', state_key, 'bid_count', 1)
    return 1
else
    return 0
end
`)

// antiSnipeScript atomically bumps end_time and anti_snipe_count together,
// bounded by max_extensions, so a racing bid cannot push the count past the
// cap (spec invariant: anti_snipe_count <= max_extensions always).
var antiSnipeScript = redis.NewScript(`
local state_key = KEYS[1]
local end_time_key = KEYS[2]
local extension_ms = tonumber(ARGV[1])
local max_extensions = tonumber(ARGV[2])
local new_end_time = ARGV[3]

local count = tonumber(redis.call('HGET', state_key, 'anti_snipe_count') or '0')
if count >= max_extensions then
    return 0
end

redis.call('HSET', state_key, 'end_time_ms', new_end_time)
redis.call('HINCRBY', state_key, 'anti_snipe_count', 1)
redis.call('SET', end_time_key, new_end_time, 'KEEPTTL')

return count + 1
`)
